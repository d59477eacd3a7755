package harvester

import (
	"context"
	"fmt"

	"bicodown/pkg/bilibili"
	"bicodown/pkg/bvid"
	errs "bicodown/pkg/errors"
	"bicodown/pkg/identifier"
)

// Target is a resolved content identifier
type Target struct {
	// ID is the canonical identifier string (BV…, EP… or SS…)
	ID    string
	OID   int64
	Title string
	Info  *bilibili.ContentInfo
}

// Resolve turns an identifier into the oid the reply endpoints expect.
// Videos decode their oid locally and only need the view endpoint for the
// title; episodes and seasons take the aid from the pgc endpoint.
func (h *Harvester) Resolve(ctx context.Context, id identifier.ContentIdentifier) (*Target, error) {
	log := h.logger.WithField("identifier", id.String())

	switch id.Kind() {
	case identifier.KindVideo:
		oid, err := bvid.Decode(id.BVID())
		if err != nil {
			log.WithError(err).Error("Invalid video shortcode")
			return nil, errs.Wrap(errs.ErrorTypeDecodeFailure, err, "decode "+id.BVID())
		}
		target := &Target{ID: id.String(), OID: oid, Title: id.String()}

		info, err := h.source.FetchVideoInfo(ctx, id.BVID())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Warn("Failed to fetch video info, using identifier as title")
			return target, nil
		}
		target.Info = info
		if info.Title != "" {
			target.Title = info.Title
		}
		return target, nil

	case identifier.KindEpisode:
		info, err := h.source.FetchEpisodeInfo(ctx, id.ID())
		if err != nil {
			log.WithError(err).Error("Failed to resolve episode")
			return nil, fmt.Errorf("resolve %s: %w", id, err)
		}
		return targetFromInfo(id, info)

	case identifier.KindSeason:
		info, err := h.source.FetchSeasonInfo(ctx, id.ID())
		if err != nil {
			log.WithError(err).Error("Failed to resolve season")
			return nil, fmt.Errorf("resolve %s: %w", id, err)
		}
		return targetFromInfo(id, info)

	default:
		return nil, errs.New(errs.ErrorTypeDecodeFailure, 0, "empty identifier")
	}
}

func targetFromInfo(id identifier.ContentIdentifier, info *bilibili.ContentInfo) (*Target, error) {
	if info.AID == 0 {
		return nil, errs.New(errs.ErrorTypeNotFound, 0, fmt.Sprintf("%s has no playable episode", id))
	}
	title := info.Title
	if title == "" {
		title = id.String()
	}
	return &Target{ID: id.String(), OID: info.AID, Title: title, Info: info}, nil
}
