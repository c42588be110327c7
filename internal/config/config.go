package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Database DatabaseConfig
	App      AppConfig
	Gateway  GatewayConfig
	Telegram TelegramConfig
	Bonus    BonusConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationPath string
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// GatewayConfig содержит настройки платежного шлюза (только callback)
type GatewayConfig struct {
	WebhookSecret string
}

// TelegramConfig содержит настройки уведомлений администратора.
// Пустой токен отключает уведомления.
type TelegramConfig struct {
	BotToken    string
	AdminChatID int64
}

// BonusConfig содержит стартовые значения бонусной таблицы.
// Используются только при первичном заполнении: источником истины
// после запуска является строка bonus_config в базе.
type BonusConfig struct {
	LevelPercents    [5]float64
	MinWithdrawal    float64
	AdhesionFee      float64
	DefaultSponsorID int64
	PendingOrderTTL  int // Часы до автоотмены неоплаченного заказа
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Database
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")
	cfg.Database.MigrationPath = getEnvDefault("MIGRATION_PATH", "scripts/migrations")

	// Gateway
	cfg.Gateway.WebhookSecret = os.Getenv("GATEWAY_WEBHOOK_SECRET")

	// Telegram
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.AdminChatID = getEnvInt64Default("TELEGRAM_ADMIN_CHAT_ID", 0)

	// Bonus: проценты по уровням 1-5 и лимиты
	cfg.Bonus.LevelPercents[0] = getEnvFloatDefault("BONUS_LEVEL_1", 10)
	cfg.Bonus.LevelPercents[1] = getEnvFloatDefault("BONUS_LEVEL_2", 5)
	cfg.Bonus.LevelPercents[2] = getEnvFloatDefault("BONUS_LEVEL_3", 3)
	cfg.Bonus.LevelPercents[3] = getEnvFloatDefault("BONUS_LEVEL_4", 2)
	cfg.Bonus.LevelPercents[4] = getEnvFloatDefault("BONUS_LEVEL_5", 1)
	cfg.Bonus.MinWithdrawal = getEnvFloatDefault("BONUS_MIN_WITHDRAWAL", 50)
	cfg.Bonus.AdhesionFee = getEnvFloatDefault("BONUS_ADHESION_FEE", 250)
	cfg.Bonus.DefaultSponsorID = getEnvInt64Default("DEFAULT_SPONSOR_ID", 1)
	cfg.Bonus.PendingOrderTTL = getEnvIntDefault("PENDING_ORDER_TTL_HOURS", 72)

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("APP_PORT", 8080)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvInt64Default(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("DB_HOST не установлен")
	}
	if config.Database.User == "" {
		return fmt.Errorf("DB_USER не установлен")
	}
	if config.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD не установлен")
	}
	if config.Database.Name == "" {
		return fmt.Errorf("DB_NAME не установлен")
	}
	for i, p := range config.Bonus.LevelPercents {
		if p < 0 || p > 100 {
			return fmt.Errorf("BONUS_LEVEL_%d вне диапазона 0-100", i+1)
		}
	}
	if config.Bonus.MinWithdrawal < 0 {
		return fmt.Errorf("BONUS_MIN_WITHDRAWAL не может быть отрицательным")
	}
	if config.Bonus.AdhesionFee <= 0 {
		return fmt.Errorf("BONUS_ADHESION_FEE должен быть положительным")
	}
	if config.Bonus.DefaultSponsorID <= 0 {
		return fmt.Errorf("DEFAULT_SPONSOR_ID должен быть положительным")
	}
	if config.Telegram.BotToken != "" && config.Telegram.AdminChatID == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_CHAT_ID не установлен при заданном TELEGRAM_BOT_TOKEN")
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
