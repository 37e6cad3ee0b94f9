package cache

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/mohammad-safakhou/apilog/models"
)

const defaultBucket = "1h"

// Variant is everything besides the window that changes a report.
type Variant struct {
	Prompt    string
	Language  string
	Audience  string
	WordLimit int
	Provider  string
	Model     string
}

func windowKey(w models.TimeWindow) string {
	bucket := w.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	return strings.Join([]string{w.From, w.To, bucket, w.SiteID}, "|")
}

// BundleKey addresses the bundle collected for (from, to, bucket, site_id).
func BundleKey(w models.TimeWindow) string { return "bundle:" + windowKey(w) }

// ReportKey addresses a report: the window tuple plus a fingerprint of v.
func ReportKey(w models.TimeWindow, v Variant) string {
	return "report:" + windowKey(w) + "|" + Fingerprint(v)
}

// Fingerprint hashes v into a short hex string.
func Fingerprint(v Variant) string {
	h := xxh3.New()
	for _, s := range []string{v.Prompt, v.Language, v.Audience, strconv.Itoa(v.WordLimit), v.Provider, v.Model} {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
