// Пакет config отвечает за сбор и предоставление конфигурации приложения
// (сборщик ссылок на MTProto). Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения,
//  3. накапливает предупреждения о подставленных дефолтах,
//  4. фиксирует результат в singleton с потокобезопасным доступом.
//
// Бизнес-контекст: конфиг управляет подключением к Telegram API (API_ID/API_HASH
// общие для всех аккаунтов), путями к реестру аккаунтов, каталогу сессий и базе
// ссылок, лимитами сканирования и настройками консоли/веб-панели.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env).
// Значения проходят минимальную валидацию и нормализацию в loadConfig;
// в рантайме предполагается, что EnvConfig последователен.
type EnvConfig struct {
	APIID   int
	APIHash string

	AccountsFile   string // JSON-реестр аккаунтов
	SessionsDir    string // каталог credential-блобов MTProto
	LinksDB        string // bbolt-база ссылок
	CategoriesFile string // JSON-таблица категорий и ключевых слов

	LogLevel    string
	AppTimezone string

	ThrottleRPS  int // лимит RPC в секунду на один аккаунт
	OpTimeoutSec int // таймаут одной операции у протокольной границы

	ScanDialogLimit  int // сколько диалогов просматривает один прогон
	ScanMessageLimit int // сколько сообщений истории читается на диалог
	ScanWorkers      int // параллелизм по аккаунтам
	ScanIntervalMin  int // период фонового сканирования; 0 — только вручную

	TestDC bool

	// Файловое логирование
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool

	// Web-панель
	WebServerEnable  bool
	WebServerAddress string
	WebAuthToken     string
}

// Config хранит конфигурацию среды. Публичные геттеры берут RLock;
// повторная загрузка запрещена, поэтому фактических мутаций после старта нет.
type Config struct {
	Env      EnvConfig
	warnings []string
	mu       sync.RWMutex
}

// Значения по умолчанию для параметров окружения и связанных файлов.
const (
	defaultLogLevel       = "info"
	defaultAccountsFile   = "data/accounts.json"
	defaultSessionsDir    = "data/sessions"
	defaultLinksDB        = "data/links.bbolt"
	defaultCategoriesFile = "assets/categories.json"
	defaultAppTimezone    = "UTC"

	defaultThrottleRPS  = 1
	defaultOpTimeoutSec = 30

	defaultScanDialogLimit  = 200
	defaultScanMessageLimit = 100
	maxScanMessageLimit     = 1000
	defaultScanWorkers      = 2
	defaultScanIntervalMin  = 0

	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true

	defaultWebServerEnable  = false
	defaultWebServerAddress = "127.0.0.1:8080"
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// AppLocation — часовая зона приложения, вычисленная при загрузке конфига.
var AppLocation = time.UTC

// Load — точка входа для инициализации глобальной конфигурации.
// Повторный вызов запрещён (возвращается ошибка), чтобы избежать гонок на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния. Удобно для тестов: можно собрать временный Config и проверить его.
func loadConfig(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	apiID, err := parseRequiredInt("API_ID")
	if err != nil {
		return nil, err
	}

	apiHash := strings.TrimSpace(os.Getenv("API_HASH"))
	if apiHash == "" {
		return nil, errors.New("env API_HASH must be set")
	}

	var warnings []string

	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), defaultLogLevel, &warnings)
	accountsFile := sanitizeFile("ACCOUNTS_FILE", os.Getenv("ACCOUNTS_FILE"), defaultAccountsFile, &warnings)
	sessionsDir := sanitizeFile("SESSIONS_DIR", os.Getenv("SESSIONS_DIR"), defaultSessionsDir, &warnings)
	linksDB := sanitizeFile("LINKS_DB", os.Getenv("LINKS_DB"), defaultLinksDB, &warnings)
	categoriesFile := sanitizeFile("CATEGORIES_FILE", os.Getenv("CATEGORIES_FILE"), defaultCategoriesFile, &warnings)

	throttleRPS := parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings)
	opTimeout := parseIntDefault("OP_TIMEOUT_SEC", defaultOpTimeoutSec, greaterThanZero, &warnings)
	dialogLimit := parseIntDefault("SCAN_DIALOG_LIMIT", defaultScanDialogLimit, greaterThanZero, &warnings)
	messageLimit := parseIntDefault("SCAN_MESSAGE_LIMIT", defaultScanMessageLimit, greaterThanZero, &warnings)
	if messageLimit > maxScanMessageLimit {
		appendWarningf(&warnings, "env SCAN_MESSAGE_LIMIT %d exceeds max %d; clamped", messageLimit, maxScanMessageLimit)
		messageLimit = maxScanMessageLimit
	}
	scanWorkers := parseIntDefault("SCAN_WORKERS", defaultScanWorkers, greaterThanZero, &warnings)
	scanInterval := parseIntDefault("SCAN_INTERVAL_MIN", defaultScanIntervalMin, nonNegative, &warnings)

	testDC := strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true")

	appTimezone := sanitizeTimezone(os.Getenv("APP_TIMEZONE"), defaultAppTimezone, &warnings)
	if loc, locErr := time.LoadLocation(appTimezone); locErr == nil {
		AppLocation = loc
	}

	logFile := strings.TrimSpace(os.Getenv("LOG_FILE"))
	logFileLevel := sanitizeLogLevel(os.Getenv("LOG_FILE_LEVEL"), defaultLogFileLevel, &warnings)
	logFileMaxSize := parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings)
	logFileMaxBackups := parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings)
	logFileMaxAge := parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings)
	logFileCompress := parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings)

	webServerEnable := parseBoolDefault("WEB_SERVER_ENABLE", defaultWebServerEnable, &warnings)
	webServerAddress := sanitizeFile("WEB_SERVER_ADDRESS", os.Getenv("WEB_SERVER_ADDRESS"),
		defaultWebServerAddress, &warnings)
	webAuthToken := strings.TrimSpace(os.Getenv("WEB_AUTH_TOKEN"))

	env := EnvConfig{
		APIID:            apiID,
		APIHash:          apiHash,
		AccountsFile:     accountsFile,
		SessionsDir:      sessionsDir,
		LinksDB:          linksDB,
		CategoriesFile:   categoriesFile,
		LogLevel:         logLevel,
		AppTimezone:      appTimezone,
		ThrottleRPS:      throttleRPS,
		OpTimeoutSec:     opTimeout,
		ScanDialogLimit:  dialogLimit,
		ScanMessageLimit: messageLimit,
		ScanWorkers:      scanWorkers,
		ScanIntervalMin:  scanInterval,
		TestDC:           testDC,
		// Файловое логирование
		LogFile:           logFile,
		LogFileLevel:      logFileLevel,
		LogFileMaxSize:    logFileMaxSize,
		LogFileMaxBackups: logFileMaxBackups,
		LogFileMaxAge:     logFileMaxAge,
		LogFileCompress:   logFileCompress,
		// Web-панель
		WebServerEnable:  webServerEnable,
		WebServerAddress: webServerAddress,
		WebAuthToken:     webAuthToken,
	}

	return &Config{Env: env, warnings: warnings}, nil
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке .env
// (например, когда подставлено значение по умолчанию). Возвращается копия.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton. Это неизменяемый снимок
// на момент загрузки; для обновления надо перезапустить процесс.
func Env() EnvConfig {
	return cfgInstance.Env
}

// OpTimeout — удобный доступ к таймауту операции протокольной границы.
func OpTimeout() time.Duration {
	return time.Duration(Env().OpTimeoutSec) * time.Second
}

// parseRequiredInt читает обязательную целочисленную переменную окружения name.
// Без неё приложение не стартует.
func parseRequiredInt(name string) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, fmt.Errorf("env %s must be set", name)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s must be a valid integer: %w", name, err)
	}
	return v, nil
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// validator — возвращает defaultVal и пишет предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// parseBoolDefault читает name как bool. Если пусто/некорректно — defaultVal.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %v", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf накапливает предупреждения о некорректных переменных окружения.
// Список затем доступен через Warnings().
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

// greaterThanZero / nonNegative — простые валидаторы чисел для parseIntDefault.
func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// sanitizeLogLevel нормализует уровень и ограничивает значения набором
// {debug, info, warn, error}. Всё остальное превращается в defaultVal.
func sanitizeLogLevel(level string, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "log level %q is invalid; using default %q", level, defaultVal)
		return defaultVal
	}
}

// sanitizeFile возвращает валидное значение-путь. Если переменная не задана,
// подставляет fallback и пишет предупреждение.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}

// sanitizeTimezone проверяет, что значение — корректная IANA-зона.
// При неудаче возвращает fallback и добавляет предупреждение.
func sanitizeTimezone(value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return fallback
	}
	if _, err := time.LoadLocation(v); err != nil {
		appendWarningf(warnings, "env APP_TIMEZONE %q is invalid; using default %q", v, fallback)
		return fallback
	}
	return v
}
