package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/viewisland/internal/config"
	"github.com/viewisland/internal/db"
	"github.com/viewisland/internal/geo"
	"github.com/viewisland/internal/service"
)

// 测试数据生成器
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("配置加载失败:", err)
	}
	// 初始化数据库
	if err := db.Init(cfg.DatabaseURL, nil); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	now := time.Now().UTC()
	ctx := context.Background()

	authorID := createTestUsers(ctx)
	categories := createTestCategories(ctx)
	posts := createTestPosts(ctx, authorID, categories, now)
	views := simulateViews(ctx, posts, now, rand.New(rand.NewSource(now.UnixNano())))

	fmt.Println("测试数据生成完成！")
	fmt.Println("账号: admin@viewisland.local / admin123 (SUPER_ADMIN)")
	fmt.Println("账号: editor@viewisland.local / editor123 (EDITOR)")
	fmt.Printf("文章: %d 篇，模拟浏览 %d 次\n", len(posts), views)
}

// sampleVisitors 将示例 IP 映射到国家，模拟浏览时使用。
var sampleVisitors = map[string]string{
	"8.8.8.8":       "US",
	"81.2.69.160":   "GB",
	"1.1.1.1":       "AU",
	"5.9.0.1":       "DE",
	"203.0.113.50":  "JP",
	"200.160.2.3":   "BR",
	"196.25.1.1":    "ZA",
	"185.60.216.35": "IE",
}

// 创建测试用户，返回默认作者 id
func createTestUsers(ctx context.Context) uint {
	var admin db.User
	if err := db.DB.Where("email = ?", "admin@viewisland.local").First(&admin).Error; err == nil {
		fmt.Println("用户已存在，跳过创建")
		return admin.ID
	}

	created, err := service.CreateUser(ctx, db.DB, "admin@viewisland.local", "admin123", "Island Admin", db.RoleSuperAdmin)
	if err != nil {
		log.Fatal("创建管理员失败:", err)
	}
	if _, err := service.CreateUser(ctx, db.DB, "editor@viewisland.local", "editor123", "Desk Editor", db.RoleEditor); err != nil {
		log.Fatal("创建编辑失败:", err)
	}
	if _, err := service.CreateUser(ctx, db.DB, "writer@viewisland.local", "writer123", "Field Writer", db.RoleWriter); err != nil {
		log.Fatal("创建作者失败:", err)
	}

	// 作者主页资料
	if err := db.DB.Model(created).Updates(db.User{
		Bio:           "Runs the island desk and writes the morning briefing.",
		TwitterHandle: "viewisland",
		WebsiteURL:    "https://viewisland.local",
	}).Error; err != nil {
		log.Fatal("更新作者资料失败:", err)
	}

	fmt.Println("✅ 测试用户创建完成")
	return created.ID
}

// 创建测试栏目
func createTestCategories(ctx context.Context) []db.Category {
	svc := service.NewCategoryService(db.DB)
	names := []string{"World", "Politics", "Business", "Technology", "Sport", "Culture"}

	for _, name := range names {
		if _, err := svc.Create(ctx, service.CategoryInput{Name: name, Description: name + " news"}); err != nil {
			fmt.Printf("栏目 %s 已存在，跳过\n", name)
		}
	}

	var categories []db.Category
	db.DB.Order("id asc").Find(&categories)
	fmt.Println("✅ 测试栏目创建完成")
	return categories
}

// 创建测试文章：大部分已发布，另有草稿与定时发布文章。
func createTestPosts(ctx context.Context, authorID uint, categories []db.Category, now time.Time) []db.Post {
	svc := service.NewPostService(db.DB).WithClock(func() time.Time { return now })
	headlines := []string{
		"Island Council Approves New Harbour Plan",
		"Local Startup Raises Seed Round",
		"Storm Season Forecast Released",
		"Ferry Timetable Changes This Summer",
		"Fishing Quotas Debated in Parliament",
		"Museum Reopens After Renovation",
		"Island Marathon Breaks Records",
		"New Fibre Network Reaches North Coast",
		"Tourism Numbers Hit Five Year High",
		"Schools Adopt Four Day Week Pilot",
		"Solar Farm Construction Begins",
		"Historic Lighthouse Restored",
	}

	var posts []db.Post
	for i, title := range headlines {
		category := categories[i%len(categories)]
		input := service.PostInput{
			Title:      title,
			Excerpt:    "Summary of " + title,
			Content:    fmt.Sprintf("## %s\n\nFull coverage of **%s**.\n\n- detail one\n- detail two", title, title),
			CoverImage: fmt.Sprintf("https://picsum.photos/seed/viewisland-%d/1200/675", i),
			CategoryID: category.ID,
			Status:     db.StatusPublished,
			IsTrending: i%4 == 0,
		}
		switch {
		case i == len(headlines)-1:
			input.Status = db.StatusDraft
		case i == len(headlines)-2:
			at := now.Add(48 * time.Hour)
			input.PublishedAt = &at
		default:
			at := now.Add(-time.Duration(i*9) * time.Hour)
			input.PublishedAt = &at
		}

		post, err := svc.Create(ctx, input, authorID)
		if err != nil {
			fmt.Printf("文章 %q 创建失败: %v\n", title, err)
			continue
		}
		posts = append(posts, *post)
	}

	fmt.Println("✅ 测试文章创建完成")
	return posts
}

// simulateViews 在过去 10 天内为已发布文章生成浏览记录，返回记录总数。
func simulateViews(ctx context.Context, posts []db.Post, now time.Time, rnd *rand.Rand) int {
	resolver, err := geo.NewStaticResolver(sampleVisitors)
	if err != nil {
		log.Fatal("构建地区解析器失败:", err)
	}
	ips := make([]string, 0, len(sampleVisitors))
	for ip := range sampleVisitors {
		ips = append(ips, ip)
	}

	total := 0
	for day := 9; day >= 0; day-- {
		at := now.AddDate(0, 0, -day)
		svc := service.NewAnalyticsService(db.DB, resolver).WithClock(func() time.Time { return at })
		for _, post := range posts {
			if !service.IsPublic(&post, at) {
				continue
			}
			n := rnd.Intn(6)
			for i := 0; i < n; i++ {
				if _, err := svc.RecordView(ctx, post.ID, ips[rnd.Intn(len(ips))]); err != nil {
					fmt.Printf("记录浏览失败: %v\n", err)
					continue
				}
				total++
			}
		}
	}

	fmt.Println("✅ 模拟浏览生成完成")
	return total
}
