package model

import "time"

type AuditAction string

const (
	//在庫を更新した操作。
	AuditActionUpdateStock AuditAction = "UPDATE_STOCK"

	//Webhookの結果が既存の終端ステータスと矛盾した。
	AuditActionReconcileConflict AuditAction = "RECONCILE_CONFLICT"

	//Webhookのintent idに対応する支払いが無い。
	AuditActionPaymentNotFound AuditAction = "PAYMENT_NOT_FOUND"

	//ゲートウェイは成功したがintent idを保存できなかった。
	AuditActionIntentAttachFailed AuditAction = "INTENT_ATTACH_FAILED"
)

type AuditResourceType string

const (
	AuditResourceProduct AuditResourceType = "product"
	AuditResourcePayment AuditResourceType = "payment"
)

// システムが記録したときのActorUserID
const SystemActorID int64 = 0

// 監査ログ（管理者操作＋運用者が確認すべき事象）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorUserID  int64             `gorm:"not null;index" json:"actor_user_id"`
	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   int64             `gorm:"not null;index" json:"resource_id"`

	//外部ID（intent idなど）
	ExternalRef string `gorm:"type:varchar(255);index" json:"external_ref"`

	BeforeJSON string    `gorm:"type:text" json:"before_json"`
	AfterJSON  string    `gorm:"type:text" json:"after_json"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}
