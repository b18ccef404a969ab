package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/viewisland/internal/config"
	"github.com/viewisland/internal/db"
	"github.com/viewisland/internal/service"
)

func main() {
	var email, password, name, role string
	flag.StringVar(&email, "email", "admin@viewisland.local", "account email")
	flag.StringVar(&password, "password", "admin123", "account password")
	flag.StringVar(&name, "name", "Administrator", "display name")
	flag.StringVar(&role, "role", string(db.RoleSuperAdmin), "SUPER_ADMIN, EDITOR or WRITER")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("配置加载失败:", err)
	}

	// 初始化数据库
	if err := db.Init(cfg.DatabaseURL, nil); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	user, err := service.CreateUser(context.Background(), db.DB, email, password, name, db.Role(strings.ToUpper(role)))
	if err != nil {
		log.Fatal("创建用户失败:", err)
	}

	fmt.Println("用户创建成功")
	fmt.Println("邮箱:", user.Email)
	fmt.Println("角色:", user.Role)
}
