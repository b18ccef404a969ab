package db

import "time"

// UnknownCountry 是无法解析来源地区时使用的统计桶。
const UnknownCountry = "Unknown"

// DailyPostStat 汇总文章按天的浏览量，(date, post_id) 为联合主键，
// 当天首次浏览时惰性创建。
type DailyPostStat struct {
	Date      time.Time `gorm:"primaryKey"`
	PostID    uint      `gorm:"primaryKey;autoIncrement:false;index"`
	Views     int64     `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定自定义表名，避免自动复数化导致的歧义。
func (DailyPostStat) TableName() string {
	return "daily_post_stats"
}

// DailyGeoStat 汇总按天、按国家的浏览量。
type DailyGeoStat struct {
	Date      time.Time `gorm:"primaryKey"`
	Country   string    `gorm:"primaryKey;size:64"`
	Views     int64     `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定自定义表名。
func (DailyGeoStat) TableName() string {
	return "daily_geo_stats"
}
