package model

import "time"

// 1ユーザーにつきアクティブなカートは1つ（部分ユニークインデックス）
type Cart struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"not null;uniqueIndex:ux_carts_active_user,where:is_active" json:"user_id"`
	IsActive  bool       `gorm:"not null;default:true;index" json:"is_active"`
	Items     []CartItem `gorm:"foreignKey:CartID" json:"items,omitempty"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
