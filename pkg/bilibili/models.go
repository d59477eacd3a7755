package bilibili

import (
	errs "bicodown/pkg/errors"
)

// Envelope is the common {code, message, data} wrapper of the web API
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Err returns a classified rejection for a non-zero code
func (e *Envelope[T]) Err() error {
	if e.Code == 0 {
		return nil
	}
	return errs.Rejection(e.Code, e.Message)
}

// SeasonEnvelope is the pgc variant, which carries its payload in "result"
type SeasonEnvelope struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Result  SeasonResult `json:"result"`
}

// Err returns a classified rejection for a non-zero code
func (e *SeasonEnvelope) Err() error {
	if e.Code == 0 {
		return nil
	}
	return errs.Rejection(e.Code, e.Message)
}

// NavData is the part of /x/web-interface/nav needed for signing
type NavData struct {
	IsLogin bool   `json:"isLogin"`
	Uname   string `json:"uname"`
	WbiImg  struct {
		ImgURL string `json:"img_url"`
		SubURL string `json:"sub_url"`
	} `json:"wbi_img"`
}

// Owner is the uploader of a video or the producer of a season
type Owner struct {
	MID  int64  `json:"mid"`
	Name string `json:"name"`
}

// ContentInfo describes the resolved content. Videos fill it straight from
// /x/web-interface/view; episodes and seasons are mapped onto the same shape.
// It is what gets written to content_info.json.
type ContentInfo struct {
	AID           int64            `json:"aid"`
	BVID          string           `json:"bvid"`
	Title         string           `json:"title"`
	Desc          string           `json:"desc"`
	Owner         Owner            `json:"owner"`
	Stat          map[string]int64 `json:"stat,omitempty"`
	EpID          int64            `json:"ep_id,omitempty"`
	SeasonID      int64            `json:"season_id,omitempty"`
	SeriesTitle   string           `json:"series_title,omitempty"`
	TotalEpisodes int              `json:"total_episodes,omitempty"`
}

// SeasonResult is the payload of /pgc/view/web/season
type SeasonResult struct {
	SeasonID int64     `json:"season_id"`
	Title    string    `json:"title"`
	Evaluate string    `json:"evaluate"`
	UpInfo   UpInfo    `json:"up_info"`
	Episodes []Episode `json:"episodes"`
}

// UpInfo is the producer of a season
type UpInfo struct {
	MID   int64  `json:"mid"`
	Uname string `json:"uname"`
}

// Episode is one entry of a season's episode list
type Episode struct {
	ID        int64            `json:"id"`
	AID       int64            `json:"aid"`
	BVID      string           `json:"bvid"`
	LongTitle string           `json:"long_title"`
	ShareCopy string           `json:"share_copy"`
	Stat      map[string]int64 `json:"stat"`
}

// Title prefers long_title, falling back to share_copy
func (e Episode) Title() string {
	if e.LongTitle != "" {
		return e.LongTitle
	}
	return e.ShareCopy
}

// Reply is one comment as returned by the reply endpoints
type Reply struct {
	RPID         int64        `json:"rpid"`
	OID          int64        `json:"oid"`
	MID          int64        `json:"mid"`
	Root         int64        `json:"root"`
	Parent       int64        `json:"parent"`
	RCount       int          `json:"rcount"`
	Like         int          `json:"like"`
	CTime        int64        `json:"ctime"`
	FansGrade    int          `json:"fansgrade"`
	Member       Member       `json:"member"`
	Content      ReplyContent `json:"content"`
	ReplyControl ReplyControl `json:"reply_control"`
	Replies      []Reply      `json:"replies"`
}

// Member is the author of a reply
type Member struct {
	Uname     string `json:"uname"`
	Sex       string `json:"sex"`
	LevelInfo struct {
		CurrentLevel int `json:"current_level"`
	} `json:"level_info"`
}

// ReplyContent is the body of a reply
type ReplyContent struct {
	Message  string    `json:"message"`
	Pictures []Picture `json:"pictures"`
}

// Picture is an image attached to a reply
type Picture struct {
	ImgSrc string `json:"img_src"`
}

// ReplyControl carries the viewer-relative flags and the IP location label
type ReplyControl struct {
	Following bool   `json:"following"`
	Location  string `json:"location"`
}

// Cursor is the pagination state of the signed main endpoint
type Cursor struct {
	IsEnd           bool `json:"is_end"`
	PaginationReply struct {
		NextOffset string `json:"next_offset"`
	} `json:"pagination_reply"`
}

// CommentPage is one page of top-level comments
type CommentPage struct {
	Replies    []Reply `json:"replies"`
	TopReplies []Reply `json:"top_replies"`
	Cursor     Cursor  `json:"cursor"`
}

// NextOffset is the cursor to send with the following page
func (p *CommentPage) NextOffset() string {
	return p.Cursor.PaginationReply.NextOffset
}

// End reports whether the platform marked this page as the last one
func (p *CommentPage) End() bool {
	return p.Cursor.IsEnd
}

// Empty reports whether the page carried no regular replies
func (p *CommentPage) Empty() bool {
	return len(p.Replies) == 0
}

// CommentQuery selects one page of comments
type CommentQuery struct {
	OID    int64
	Page   int
	Sort   int
	Offset string
}

// VideoSummary is one entry of an uploader's video list
type VideoSummary struct {
	AID     int64  `json:"aid"`
	BVID    string `json:"bvid"`
	Title   string `json:"title"`
	Comment int    `json:"comment"`
	Created int64  `json:"created"`
	Length  string `json:"length"`
}

// VideoList is one page of /x/space/wbi/arc/search
type VideoList struct {
	List struct {
		Vlist []VideoSummary `json:"vlist"`
	} `json:"list"`
	Page struct {
		PN    int `json:"pn"`
		PS    int `json:"ps"`
		Count int `json:"count"`
	} `json:"page"`
}
