package service

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	contentEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML(), html.WithUnsafe()),
	)
	contentPolicy = bluemonday.UGCPolicy()
)

// RenderContent 将正文（Markdown 或编辑器产出的 HTML）渲染为可安全输出的 HTML。
// 原始 HTML 会先透传再由 bluemonday 清洗。
func RenderContent(content string) (string, error) {
	var buf bytes.Buffer
	if err := contentEngine.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return string(contentPolicy.SanitizeBytes(buf.Bytes())), nil
}
