package models

import (
	"strconv"
	"strings"

	"bicodown/pkg/bilibili"
)

// LocationPrefix is prepended by the platform to every IP location label
const LocationPrefix = "IP属地："

// Picture is an image attached to a comment
type Picture struct {
	ImgSrc string `json:"img_src"`
}

// Comment is one harvested reply. Identity is RPID.
type Comment struct {
	// ContainerID is the content identifier (BV…, EP… or SS…) the comment
	// was harvested under; it fills the bvid column.
	ContainerID string    `json:"container_id"`
	RPID        int64     `json:"rpid"`
	Parent      int64     `json:"parent"`
	OID         int64     `json:"oid"`
	MID         int64     `json:"mid"`
	Uname       string    `json:"uname"`
	Sex         string    `json:"sex"`
	Content     string    `json:"content"`
	Like        int       `json:"like"`
	Level       int       `json:"level"`
	Location    string    `json:"location"`
	CTime       int64     `json:"ctime"`
	Pictures    []Picture `json:"pictures"`
	FansGrade   int       `json:"fans_grade"`
	Following   bool      `json:"following"`
}

// FromReply builds a Comment from an API reply. ContainerID is left for the
// caller.
func FromReply(r bilibili.Reply) Comment {
	pictures := make([]Picture, 0, len(r.Content.Pictures))
	for _, p := range r.Content.Pictures {
		pictures = append(pictures, Picture{ImgSrc: p.ImgSrc})
	}

	return Comment{
		RPID:      r.RPID,
		Parent:    r.Parent,
		OID:       r.OID,
		MID:       r.MID,
		Uname:     r.Member.Uname,
		Sex:       r.Member.Sex,
		Content:   r.Content.Message,
		Like:      r.Like,
		Level:     r.Member.LevelInfo.CurrentLevel,
		Location:  strings.ReplaceAll(r.ReplyControl.Location, LocationPrefix, ""),
		CTime:     r.CTime,
		Pictures:  pictures,
		FansGrade: r.FansGrade,
		Following: r.ReplyControl.Following,
	}
}

// PictureURLs lists the picture sources in order
func (c *Comment) PictureURLs() []string {
	urls := make([]string, 0, len(c.Pictures))
	for _, p := range c.Pictures {
		urls = append(urls, p.ImgSrc)
	}
	return urls
}

// CSVHeader is the column order of the dataset file
func CSVHeader() []string {
	return []string{
		"bvid",
		"upname",
		"sex",
		"content",
		"pictures",
		"rpid",
		"oid",
		"mid",
		"parent",
		"fans_grade",
		"ctime",
		"like",
		"following",
		"level",
		"location",
	}
}

// Record renders the comment as a CSV row matching CSVHeader. Following is
// written as True/False, which is what existing datasets contain.
func (c *Comment) Record() []string {
	return []string{
		c.ContainerID,
		c.Uname,
		c.Sex,
		c.Content,
		strings.Join(c.PictureURLs(), ";"),
		strconv.FormatInt(c.RPID, 10),
		strconv.FormatInt(c.OID, 10),
		strconv.FormatInt(c.MID, 10),
		strconv.FormatInt(c.Parent, 10),
		strconv.Itoa(c.FansGrade),
		strconv.FormatInt(c.CTime, 10),
		strconv.Itoa(c.Like),
		formatBool(c.Following),
		strconv.Itoa(c.Level),
		c.Location,
	}
}

// FromRecord rebuilds a Comment from a CSV row keyed by column name.
// Unparseable numbers become zero.
func FromRecord(row map[string]string) Comment {
	c := Comment{
		ContainerID: row["bvid"],
		Uname:       row["upname"],
		Sex:         row["sex"],
		Content:     row["content"],
		RPID:        parseInt(row["rpid"]),
		OID:         parseInt(row["oid"]),
		MID:         parseInt(row["mid"]),
		Parent:      parseInt(row["parent"]),
		FansGrade:   int(parseInt(row["fans_grade"])),
		CTime:       parseInt(row["ctime"]),
		Like:        int(parseInt(row["like"])),
		Following:   parseBool(row["following"]),
		Level:       int(parseInt(row["level"])),
		Location:    row["location"],
	}
	for _, src := range strings.Split(row["pictures"], ";") {
		if src = strings.TrimSpace(src); src != "" {
			c.Pictures = append(c.Pictures, Picture{ImgSrc: src})
		}
	}
	return c
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
