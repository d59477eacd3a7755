package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	errs "bicodown/pkg/errors"
	"bicodown/pkg/wbi"
)

const (
	// APIBaseURL is the host serving every JSON endpoint
	APIBaseURL = "https://api.bilibili.com"

	// SiteURL is sent as Origin and default Referer
	SiteURL = "https://www.bilibili.com"

	// SpaceURL hosts uploader pages
	SpaceURL = "https://space.bilibili.com"

	// DefaultTimeout applies when the config leaves request_timeout unset
	DefaultTimeout = 10 * time.Second

	// SubReplyPageSize is the ps sent to the sub-reply endpoint
	SubReplyPageSize = 20

	// VideoListPageSize is the ps sent to the uploader listing
	VideoListPageSize = 30

	navPath      = "/x/web-interface/nav"
	viewPath     = "/x/web-interface/view"
	seasonPath   = "/pgc/view/web/season"
	countPath    = "/x/v2/reply/count"
	replyPath    = "/x/v2/reply"
	mainPath     = "/x/v2/reply/wbi/main"
	subReplyPath = "/x/v2/reply/reply"
	arcPath      = "/x/space/wbi/arc/search"

	// web_location sent by the comment section of the video page
	mainWebLocation = "1315875"
)

func (c *Client) endpointURL(path string, params url.Values) string {
	if len(params) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + params.Encode()
}

func (c *Client) signedURL(ctx context.Context, path string, params url.Values) string {
	return c.baseURL + path + "?" + c.signer.SignValues(ctx, params)
}

// PaginationOffset renders the pagination_str parameter of the main endpoint
func PaginationOffset(offset string) string {
	if offset == "" {
		return `{"offset":""}`
	}
	quoted, _ := json.Marshal(offset)
	return `{"offset":` + string(quoted) + `}`
}

// FetchWbiKeys reads the current signing keys from the nav endpoint. The
// endpoint answers -101 for anonymous sessions but still carries the keys,
// so the envelope code is ignored.
func (c *Client) FetchWbiKeys(ctx context.Context) (wbi.KeyPair, error) {
	var env Envelope[NavData]
	if err := c.getJSON(ctx, "nav", c.endpointURL(navPath, nil), nil, &env); err != nil {
		return wbi.KeyPair{}, err
	}

	keys := wbi.KeyPair{
		ImgKey: wbi.KeyFromURL(env.Data.WbiImg.ImgURL),
		SubKey: wbi.KeyFromURL(env.Data.WbiImg.SubURL),
	}
	if keys.Empty() {
		return keys, errs.New(errs.ErrorTypeSignatureUnavailable, env.Code, "nav response carried no wbi_img keys")
	}
	return keys, nil
}

// FetchVideoInfo fetches the metadata of a video
func (c *Client) FetchVideoInfo(ctx context.Context, bvid string) (*ContentInfo, error) {
	params := url.Values{}
	params.Set("bvid", bvid)

	var env Envelope[ContentInfo]
	headers := map[string]string{"Referer": SiteURL + "/video/" + bvid}
	if err := c.getJSON(ctx, "view", c.endpointURL(viewPath, params), headers, &env); err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, c.rejected("view", err)
	}

	c.logger.DebugWithFields("fetched video info", map[string]interface{}{
		"bvid":  bvid,
		"title": env.Data.Title,
	})
	return &env.Data, nil
}

func (c *Client) fetchSeason(ctx context.Context, key string, id int64, referer string) (*SeasonResult, error) {
	params := url.Values{}
	params.Set(key, strconv.FormatInt(id, 10))

	var env SeasonEnvelope
	headers := map[string]string{"Referer": referer}
	if err := c.getJSON(ctx, "season", c.endpointURL(seasonPath, params), headers, &env); err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, c.rejected("season", err)
	}
	return &env.Result, nil
}

// FetchEpisodeInfo resolves a bangumi episode to the aid its comments hang off
func (c *Client) FetchEpisodeInfo(ctx context.Context, epID int64) (*ContentInfo, error) {
	season, err := c.fetchSeason(ctx, "ep_id", epID, fmt.Sprintf("%s/bangumi/play/ep%d", SiteURL, epID))
	if err != nil {
		return nil, err
	}

	for _, ep := range season.Episodes {
		if ep.ID != epID {
			continue
		}
		return &ContentInfo{
			AID:         ep.AID,
			BVID:        ep.BVID,
			Title:       ep.Title(),
			Owner:       Owner{MID: season.UpInfo.MID, Name: season.UpInfo.Uname},
			Stat:        ep.Stat,
			EpID:        epID,
			SeasonID:    season.SeasonID,
			SeriesTitle: season.Title,
		}, nil
	}

	return nil, errs.New(errs.ErrorTypeNotFound, 0, fmt.Sprintf("episode ep%d not found in its season", epID))
}

// FetchSeasonInfo resolves a season to its first episode, titled after the season
func (c *Client) FetchSeasonInfo(ctx context.Context, seasonID int64) (*ContentInfo, error) {
	season, err := c.fetchSeason(ctx, "season_id", seasonID, fmt.Sprintf("%s/bangumi/play/ss%d", SiteURL, seasonID))
	if err != nil {
		return nil, err
	}
	if len(season.Episodes) == 0 {
		return nil, errs.New(errs.ErrorTypeNotFound, 0, fmt.Sprintf("season ss%d has no episodes", seasonID))
	}

	first := season.Episodes[0]
	return &ContentInfo{
		AID:           first.AID,
		BVID:          first.BVID,
		Title:         season.Title,
		Desc:          season.Evaluate,
		Owner:         Owner{MID: season.UpInfo.MID, Name: season.UpInfo.Uname},
		Stat:          first.Stat,
		EpID:          first.ID,
		SeasonID:      seasonID,
		SeriesTitle:   season.Title,
		TotalEpisodes: len(season.Episodes),
	}, nil
}

// FetchCommentCount returns the platform-reported number of comments
func (c *Client) FetchCommentCount(ctx context.Context, oid int64) (int, error) {
	params := url.Values{}
	params.Set("type", "1")
	params.Set("oid", strconv.FormatInt(oid, 10))

	var env Envelope[struct {
		Count int `json:"count"`
	}]
	if err := c.getJSON(ctx, "count", c.endpointURL(countPath, params), nil, &env); err != nil {
		return 0, err
	}
	if err := env.Err(); err != nil {
		return 0, c.rejected("count", err)
	}
	return env.Data.Count, nil
}

// FetchComments fetches one page of top-level comments. The unsigned legacy
// endpoint is tried first; when it fails the signed main endpoint is used
// with the cursor, after the retry delay.
func (c *Client) FetchComments(ctx context.Context, q CommentQuery) (*CommentPage, error) {
	page, err := c.fetchLegacyComments(ctx, q)
	if err == nil {
		return page, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c.logger.WarnWithFields("legacy comment endpoint failed, trying signed endpoint", map[string]interface{}{
		"oid":   q.OID,
		"page":  q.Page,
		"error": err.Error(),
	})
	if err := c.sleep(ctx, c.retryDelay); err != nil {
		return nil, err
	}
	return c.fetchMainComments(ctx, q)
}

func (c *Client) fetchLegacyComments(ctx context.Context, q CommentQuery) (*CommentPage, error) {
	params := url.Values{}
	params.Set("oid", strconv.FormatInt(q.OID, 10))
	params.Set("type", "1")
	params.Set("pn", strconv.Itoa(q.Page))
	params.Set("sort", strconv.Itoa(q.Sort))

	var env Envelope[CommentPage]
	if err := c.getJSON(ctx, "reply", c.endpointURL(replyPath, params), nil, &env); err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, c.rejected("reply", err)
	}
	return &env.Data, nil
}

func (c *Client) fetchMainComments(ctx context.Context, q CommentQuery) (*CommentPage, error) {
	params := url.Values{}
	params.Set("oid", strconv.FormatInt(q.OID, 10))
	params.Set("type", "1")
	params.Set("mode", "3")
	params.Set("plat", "1")
	params.Set("web_location", mainWebLocation)
	params.Set("pagination_str", PaginationOffset(q.Offset))

	var env Envelope[CommentPage]
	if err := c.getJSON(ctx, "main", c.signedURL(ctx, mainPath, params), nil, &env); err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, c.rejected("main", err)
	}
	return &env.Data, nil
}

// FetchSubReplies fetches one page of replies under root
func (c *Client) FetchSubReplies(ctx context.Context, oid, root int64, page int) ([]Reply, error) {
	params := url.Values{}
	params.Set("oid", strconv.FormatInt(oid, 10))
	params.Set("type", "1")
	params.Set("root", strconv.FormatInt(root, 10))
	params.Set("ps", strconv.Itoa(SubReplyPageSize))
	params.Set("pn", strconv.Itoa(page))

	var env Envelope[struct {
		Replies []Reply `json:"replies"`
	}]
	if err := c.getJSON(ctx, "sub_reply", c.signedURL(ctx, subReplyPath, params), nil, &env); err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, c.rejected("sub_reply", err)
	}
	return env.Data.Replies, nil
}

// FetchVideoList fetches one page of an uploader's videos. order is one of
// pubdate, click or stow.
func (c *Client) FetchVideoList(ctx context.Context, mid int64, page int, order string) (*VideoList, error) {
	params := url.Values{}
	params.Set("mid", strconv.FormatInt(mid, 10))
	params.Set("order", order)
	params.Set("platform", "web")
	params.Set("pn", strconv.Itoa(page))
	params.Set("ps", strconv.Itoa(VideoListPageSize))
	params.Set("tid", "0")

	var env Envelope[VideoList]
	headers := map[string]string{"Referer": fmt.Sprintf("%s/%d/video", SpaceURL, mid)}
	if err := c.getJSON(ctx, "arc_search", c.signedURL(ctx, arcPath, params), headers, &env); err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, c.rejected("arc_search", err)
	}
	return &env.Data, nil
}
