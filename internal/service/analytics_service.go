package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/viewisland/internal/db"
	"github.com/viewisland/internal/geo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	topPostsLimit  = 5
	trendWindowDay = 7
)

// GeoRange 是地区分布支持的时间范围。
type GeoRange string

const (
	GeoRange24h GeoRange = "24h"
	GeoRange7d  GeoRange = "7d"
	GeoRange30d GeoRange = "30d"
	GeoRangeAll GeoRange = "all"
)

// ParseGeoRange 解析时间范围，空字符串视为 7d。
func ParseGeoRange(raw string) (GeoRange, error) {
	switch GeoRange(strings.ToLower(strings.TrimSpace(raw))) {
	case "", GeoRange7d:
		return GeoRange7d, nil
	case GeoRange24h:
		return GeoRange24h, nil
	case GeoRange30d:
		return GeoRange30d, nil
	case GeoRangeAll:
		return GeoRangeAll, nil
	}
	return "", ErrInvalidRange
}

// AnalyticsService 负责记录文章浏览并汇总后台统计。
// 所有按天统计都使用同一个参考时区计算“当天”。
type AnalyticsService struct {
	db       *gorm.DB
	geo      geo.Resolver
	clock    Clock
	location *time.Location
}

// ViewResult 描述一次浏览记录的结果。
type ViewResult struct {
	PostID  uint   `json:"postId"`
	Country string `json:"country"`
	Views   int64  `json:"views"`
}

// Overview 汇总全站文章数与浏览量。
type Overview struct {
	TotalPosts int64 `json:"totalPosts"`
	TotalViews int64 `json:"totalViews"`
	AvgViews   int64 `json:"avgViews"`
}

// TopPost 描述热门文章的统计信息。
type TopPost struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
	Views int64  `json:"views"`
}

// CategoryCount 是栏目下的文章数。
type CategoryCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// TrendPoint 是趋势图中的单日数据，Name 为星期缩写。
type TrendPoint struct {
	Date  time.Time `json:"date"`
	Name  string    `json:"name"`
	Views int64     `json:"views"`
}

// AdminStats 是后台仪表盘的数据。
type AdminStats struct {
	Overview      Overview        `json:"overview"`
	TopPosts      []TopPost       `json:"topPosts"`
	CategoryData  []CategoryCount `json:"categoryData"`
	ActivityTrend []TrendPoint    `json:"activityTrend"`
}

// CountryViews 是单个国家在时间范围内的浏览量及占比。
type CountryViews struct {
	Country string `json:"country"`
	Views   int64  `json:"views"`
	Percent int    `json:"percent"`
}

// GeoBreakdown 按浏览量降序列出各国家。
type GeoBreakdown struct {
	Range     GeoRange       `json:"range"`
	Total     int64          `json:"total"`
	Countries []CountryViews `json:"countries"`
}

// NewAnalyticsService 创建 AnalyticsService，默认使用 UTC 计算日期。
func NewAnalyticsService(gdb *gorm.DB, resolver geo.Resolver) *AnalyticsService {
	if resolver == nil {
		resolver = geo.Nop
	}
	return &AnalyticsService{db: gdb, geo: resolver, clock: systemClock, location: time.UTC}
}

// WithClock 替换时间来源。
func (s *AnalyticsService) WithClock(clock Clock) *AnalyticsService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithLocation 设置按天统计使用的参考时区。
func (s *AnalyticsService) WithLocation(loc *time.Location) *AnalyticsService {
	if loc != nil {
		s.location = loc
	}
	return s
}

// RecordView 记录一次文章浏览：文章总浏览量、文章日统计、地区日统计
// 三个计数器在同一事务中递增，任一步失败全部回滚。
// 计数器只通过 SQL 的 upsert 自增，不做先读后写。
func (s *AnalyticsService) RecordView(ctx context.Context, postID uint, sourceIP string) (*ViewResult, error) {
	country := s.resolveCountry(sourceIP)
	now := s.clock().UTC()
	day := startOfDay(now, s.location)

	result := &ViewResult{PostID: postID, Country: country}

	err := db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		bump := tx.Model(&db.Post{}).
			Where("id = ?", postID).
			UpdateColumn("views", gorm.Expr("views + ?", 1))
		if bump.Error != nil {
			return bump.Error
		}
		if bump.RowsAffected == 0 {
			return ErrPostNotFound
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}, {Name: "post_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"views":      gorm.Expr("daily_post_stats.views + ?", 1),
				"updated_at": now,
			}),
		}).Create(&db.DailyPostStat{Date: day, PostID: postID, Views: 1}).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}, {Name: "country"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"views":      gorm.Expr("daily_geo_stats.views + ?", 1),
				"updated_at": now,
			}),
		}).Create(&db.DailyGeoStat{Date: day, Country: country, Views: 1}).Error; err != nil {
			return err
		}

		return tx.Model(&db.Post{}).Select("views").Where("id = ?", postID).Scan(&result.Views).Error
	})
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("record view for post %d: %w", postID, err)
	}

	return result, nil
}

// AdminOverview 汇总后台仪表盘：总量、热门文章、栏目分布与最近 7 天趋势。
func (s *AnalyticsService) AdminOverview(ctx context.Context) (*AdminStats, error) {
	now := s.clock().UTC()
	// 含今天在内的 7 天
	from := daysBack(now, s.location, trendWindowDay-1)

	stats := &AdminStats{
		TopPosts:      []TopPost{},
		CategoryData:  []CategoryCount{},
		ActivityTrend: []TrendPoint{},
	}

	err := db.Snapshot(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Model(&db.Post{}).Count(&stats.Overview.TotalPosts).Error; err != nil {
			return err
		}

		var totals struct {
			Views int64
		}
		if err := tx.Model(&db.Post{}).
			Select("COALESCE(SUM(views), 0) AS views").
			Scan(&totals).Error; err != nil {
			return err
		}
		stats.Overview.TotalViews = totals.Views

		if err := tx.Model(&db.Post{}).
			Select("id, title, slug, views").
			Order("views desc, created_at desc, id desc").
			Limit(topPostsLimit).
			Scan(&stats.TopPosts).Error; err != nil {
			return err
		}

		if err := tx.Table("categories").
			Select("categories.name AS name, COUNT(posts.id) AS count").
			Joins("LEFT JOIN posts ON posts.category_id = categories.id").
			Group("categories.id, categories.name").
			Order("categories.name asc").
			Scan(&stats.CategoryData).Error; err != nil {
			return err
		}

		var daily []struct {
			Date  time.Time
			Views int64
		}
		if err := tx.Model(&db.DailyPostStat{}).
			Select("daily_post_stats.date AS date, SUM(daily_post_stats.views) AS views").
			Where("daily_post_stats.date >= ?", from).
			Group("daily_post_stats.date").
			Order("daily_post_stats.date asc").
			Scan(&daily).Error; err != nil {
			return err
		}
		for _, row := range daily {
			if row.Views == 0 {
				continue
			}
			stats.ActivityTrend = append(stats.ActivityTrend, TrendPoint{
				Date:  row.Date.UTC(),
				Name:  row.Date.In(s.location).Format("Mon"),
				Views: row.Views,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("admin overview: %w", err)
	}

	if stats.Overview.TotalPosts > 0 {
		stats.Overview.AvgViews = int64(math.Round(float64(stats.Overview.TotalViews) / float64(stats.Overview.TotalPosts)))
	}

	return stats, nil
}

// GeoBreakdown 返回时间范围内各国家的浏览量，按浏览量严格降序（同量按国家代码升序）。
func (s *AnalyticsService) GeoBreakdown(ctx context.Context, rng GeoRange) (*GeoBreakdown, error) {
	now := s.clock().UTC()

	q := s.db.WithContext(ctx).Model(&db.DailyGeoStat{}).
		Select("daily_geo_stats.country AS country, SUM(daily_geo_stats.views) AS views").
		Group("daily_geo_stats.country")

	switch rng {
	case GeoRange24h:
		q = q.Where("daily_geo_stats.date >= ?", startOfDay(now, s.location))
	case GeoRange7d:
		q = q.Where("daily_geo_stats.date >= ?", daysBack(now, s.location, 7))
	case GeoRange30d:
		q = q.Where("daily_geo_stats.date >= ?", daysBack(now, s.location, 30))
	case GeoRangeAll:
	default:
		return nil, ErrInvalidRange
	}

	var rows []CountryViews
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("geo breakdown: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Views != rows[j].Views {
			return rows[i].Views > rows[j].Views
		}
		return rows[i].Country < rows[j].Country
	})

	var total int64
	values := make([]int64, len(rows))
	for i, row := range rows {
		total += row.Views
		values[i] = row.Views
	}
	for i, pct := range roundedPercents(values, total) {
		rows[i].Percent = pct
	}
	if rows == nil {
		rows = []CountryViews{}
	}

	return &GeoBreakdown{Range: rng, Total: total, Countries: rows}, nil
}

func (s *AnalyticsService) resolveCountry(ip string) (country string) {
	country = db.UnknownCountry
	defer func() {
		if recover() != nil {
			country = db.UnknownCountry
		}
	}()

	code, ok := s.geo.Lookup(ip)
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ok || code == "" {
		return db.UnknownCountry
	}
	return code
}

// startOfDay 返回 t 在 loc 时区当天零点对应的 UTC 时刻。
func startOfDay(t time.Time, loc *time.Location) time.Time {
	return daysBack(t, loc, 0)
}

func daysBack(t time.Time, loc *time.Location, days int) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d-days, 0, 0, 0, 0, loc).UTC()
}

// roundedPercents 计算四舍五入后的百分比。四舍五入可能让总和超过 100，
// 此时从进位幅度最大的项开始逐个减一，直到总和不超过 100。
func roundedPercents(values []int64, total int64) []int {
	out := make([]int, len(values))
	if total <= 0 {
		return out
	}

	type roundUp struct {
		idx  int
		diff float64
	}
	var ups []roundUp
	sum := 0
	for i, v := range values {
		exact := float64(v) / float64(total) * 100
		rounded := int(math.Round(exact))
		out[i] = rounded
		sum += rounded
		if float64(rounded) > exact {
			ups = append(ups, roundUp{idx: i, diff: float64(rounded) - exact})
		}
	}

	sort.SliceStable(ups, func(i, j int) bool {
		if ups[i].diff != ups[j].diff {
			return ups[i].diff > ups[j].diff
		}
		return ups[i].idx > ups[j].idx
	})
	for i := 0; sum > 100 && i < len(ups); i++ {
		out[ups[i].idx]--
		sum--
	}
	return out
}
