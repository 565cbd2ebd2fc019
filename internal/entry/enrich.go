package entry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// EnrichFromPayload adapts Enrich to the job queue's handler signature.
func (s *Service) EnrichFromPayload(ctx context.Context, payloadJSON string) error {
	var payload EnrichPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return err
	}
	return s.Enrich(ctx, payload.EntryID)
}

// Enrich produces the streaming manifest for a submitted entry. It is the
// handler body for EnrichJobKind: safe to re-run, keyed by entry id, and a
// terminal failure simply leaves the entry serving its original video URL.
func (s *Service) Enrich(ctx context.Context, entryID string) error {
	record, err := s.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if record.StreamURL != "" {
		return nil
	}

	manifest := fmt.Sprintf("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:0\n#EXTINF:-1,\n%s\n#EXT-X-ENDLIST\n", record.VideoURL)
	manifestKey := fmt.Sprintf("showcase/%s/stream.m3u8", entryID)
	streamURL, err := s.media.Put(ctx, manifestKey, "application/vnd.apple.mpegurl", strings.NewReader(manifest))
	if err != nil {
		return err
	}
	if err := s.SetStreamURL(ctx, entryID, streamURL); err != nil {
		return err
	}

	s.logger.Info("entry enriched",
		zap.String("entry_id", entryID),
		zap.String("stream_url", streamURL))
	return nil
}
