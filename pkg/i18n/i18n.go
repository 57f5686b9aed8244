package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	ShutdownComplete   string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	APIServerError     string

	// Reference data
	RefDataSynced     string
	RefDataSyncFailed string

	// Trade ids
	SequenceSQLite      string
	SequenceRedis       string
	SequenceInitFailed  string
	SequenceRedisFailed string

	// Events and audit
	AuditEnabled      string
	AuditDisabled     string
	KafkaForwarding   string
	KafkaInitFailed   string
	AuditFlushFailed  string
	MonitorStarted    string
	HealthListening   string
	HealthServeFailed string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	Starting:           "Starting trade booking core...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	ShutdownComplete:   "Shutdown complete",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	APIServerError:     "API server error: %v",

	RefDataSynced:     "Reference data synced (%d kinds, %d users)",
	RefDataSyncFailed: "Failed to sync reference data: %v",

	SequenceSQLite:      "Trade ids allocated from SQLite (base %d)",
	SequenceRedis:       "Trade ids allocated from Redis key %s",
	SequenceInitFailed:  "Failed to init trade id sequence: %v",
	SequenceRedisFailed: "Redis sequence unavailable, falling back to SQLite: %v",

	AuditEnabled:      "Audit trail enabled (flush every %dms)",
	AuditDisabled:     "Audit trail disabled",
	KafkaForwarding:   "Forwarding lifecycle events to Kafka topic %s",
	KafkaInitFailed:   "Kafka producer unavailable: %v",
	AuditFlushFailed:  "Final audit flush failed: %v",
	MonitorStarted:    "Rejection monitor started",
	HealthListening:   "gRPC health listening on %s",
	HealthServeFailed: "gRPC health server error: %v",
}

// Chinese messages
var messagesZH = Messages{
	Starting:           "正在啟動交易簿記核心...",
	ConfigLoaded:       "設定已載入 (連接埠: %s)",
	UsingDBPath:        "使用資料庫路徑: %s",
	ServerListening:    "伺服器監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	ShutdownComplete:   "關閉完成",
	ConfigLoadFailed:   "載入設定失敗: %v",
	DBInitFailed:       "初始化資料庫失敗: %v",
	DBMigrationsFailed: "套用遷移失敗: %v",
	APIServerError:     "API 伺服器錯誤: %v",

	RefDataSynced:     "參考資料已同步 (%d 類, %d 位使用者)",
	RefDataSyncFailed: "同步參考資料失敗: %v",

	SequenceSQLite:      "交易編號由 SQLite 配發 (起始 %d)",
	SequenceRedis:       "交易編號由 Redis 鍵 %s 配發",
	SequenceInitFailed:  "初始化交易編號序列失敗: %v",
	SequenceRedisFailed: "Redis 序列不可用，改用 SQLite: %v",

	AuditEnabled:      "稽核軌跡已啟用 (每 %dms 寫入)",
	AuditDisabled:     "稽核軌跡已停用",
	KafkaForwarding:   "生命週期事件轉送至 Kafka 主題 %s",
	KafkaInitFailed:   "Kafka 生產者不可用: %v",
	AuditFlushFailed:  "最後一次稽核寫入失敗: %v",
	MonitorStarted:    "拒絕監控已啟動",
	HealthListening:   "gRPC 健康檢查監聽於 %s",
	HealthServeFailed: "gRPC 健康檢查伺服器錯誤: %v",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
