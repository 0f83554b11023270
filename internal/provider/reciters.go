package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// reciterDirRE 匹配 CDN 索引页里的 reciter 目录名（形如 ar.alafasy/）。
var reciterDirRE = regexp.MustCompile(`^[a-z]{2,3}\.[a-z][a-z0-9]*$`)

// Discover 抓取 CDN 索引页并解析出可用的 reciter 目录名。
//
// 约束：
// - Fetch 与 Parse 分离：ParseIndex 是纯函数（只依赖输入 HTML），便于离线测试
// - 不做缓存/重试/限速：这是一次性的操作者查询，不属于批量下载路径
func Discover(ctx context.Context, c *http.Client, baseURL string) ([]string, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	html, err := fetchIndex(ctx, c, strings.TrimRight(baseURL, "/")+"/")
	if err != nil {
		return nil, err
	}
	return ParseIndex(html)
}

// ParseIndex 从目录索引 HTML 中提取 reciter 目录名（去重 + 排序）。
func ParseIndex(html []byte) ([]string, error) {
	if len(html) == 0 {
		return nil, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		name := cleanDirName(href)
		if name == "" || !reciterDirRE.MatchString(name) {
			return
		}
		seen[name] = struct{}{}
	})

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func cleanDirName(href string) string {
	href = strings.TrimSpace(href)
	// 只认相对目录链接；绝对链接/查询串是索引页的导航噪音。
	if strings.Contains(href, "://") || strings.Contains(href, "?") {
		return ""
	}
	href = strings.TrimPrefix(href, "./")
	return strings.TrimSuffix(href, "/")
}

func fetchIndex(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
