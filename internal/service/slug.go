package service

import (
	"regexp"
	"strings"
)

var (
	slugStripPattern    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapsePattern = regexp.MustCompile(`[\s_-]+`)
	slugEdgePattern     = regexp.MustCompile(`^-+|-+$`)
)

// Slugify 生成 URL 友好的 slug：转小写，去掉非单词字符，
// 空白/下划线/连字符折叠为单个连字符，并去掉首尾连字符。
func Slugify(text string) string {
	slug := strings.TrimSpace(strings.ToLower(text))
	slug = slugStripPattern.ReplaceAllString(slug, "")
	slug = slugCollapsePattern.ReplaceAllString(slug, "-")
	return slugEdgePattern.ReplaceAllString(slug, "")
}

// resolveSlug 优先使用调用方提供的 slug，否则由 fallback 推导。
func resolveSlug(explicit *string, fallback string) (string, error) {
	var slug string
	if explicit != nil && strings.TrimSpace(*explicit) != "" {
		slug = strings.TrimSpace(*explicit)
	} else {
		slug = Slugify(fallback)
	}
	if slug == "" {
		return "", ErrEmptySlug
	}
	return slug, nil
}
