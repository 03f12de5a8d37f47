package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota // 调试信息（逐根K线的成交明细）
	INFO                  // 一般信息（回测开始/结束、服务启动）
	WARN                  // 警告信息（缓存过期、远端数据源失败）
	ERROR                 // 错误信息
	FATAL                 // 致命错误（程序无法继续）
)

var (
	globalLevel LogLevel = INFO
	mu          sync.RWMutex

	logDir = "logs"
	dirMu  sync.RWMutex

	// 应用日志仅在 DEBUG 级别写文件；Web 日志由 InitWebLogger 显式开启
	appFile = &dailyFile{prefix: "app-quantlab"}
	webFile = &dailyFile{prefix: "web-gin"}

	globalLocation *time.Location = time.Local
	locationMu     sync.RWMutex

	// hook 订阅日志（例如推送到 WebSocket），通过函数指针避免循环依赖
	hook   func(level, message string)
	hookMu sync.RWMutex
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel 解析日志级别字符串，无法识别时返回 INFO
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetLevel 设置全局日志级别，DEBUG 时同时写入按日期命名的日志文件
func SetLevel(level LogLevel) {
	mu.Lock()
	globalLevel = level
	mu.Unlock()

	if level == DEBUG {
		if err := appFile.open(); err != nil {
			log.Printf("[WARN] %v，将只输出到控制台", err)
		}
	} else {
		appFile.close()
	}
}

// GetLevel 获取全局日志级别
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return globalLevel
}

// SetLocation 设置日志时区（影响文件名日期和文件内时间戳）
func SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	locationMu.Lock()
	defer locationMu.Unlock()
	globalLocation = loc
}

// SetLogDir 设置日志目录
func SetLogDir(dir string) {
	if dir == "" {
		return
	}
	appFile.close()
	webFile.close()
	dirMu.Lock()
	logDir = dir
	dirMu.Unlock()
	if GetLevel() == DEBUG {
		appFile.open()
	}
}

// SetHook 设置日志订阅函数，传入 nil 取消订阅
func SetHook(fn func(level, message string)) {
	hookMu.Lock()
	defer hookMu.Unlock()
	hook = fn
}

// InitWebLogger 开启 Web 访问日志文件
func InitWebLogger() error {
	return webFile.open()
}

// WriteWebLog 写入 Web 访问日志（供 Gin 中间件使用）
func WriteWebLog(message string) {
	webFile.write(message)
}

// Close 关闭日志文件（程序退出时调用）
func Close() {
	appFile.close()
	webFile.close()
	SetHook(nil)
}

func currentDir() string {
	dirMu.RLock()
	defer dirMu.RUnlock()
	return logDir
}

func location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return globalLocation
}

// dailyFile 按日期轮转的日志文件
type dailyFile struct {
	prefix string

	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	date   string
}

// open 打开当天的日志文件，已打开且日期未变时不做任何事
func (f *dailyFile) open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotateLocked()
}

// rotateLocked 调用前必须持有 f.mu
func (f *dailyFile) rotateLocked() error {
	today := time.Now().In(location()).Format("2006-01-02")
	if f.logger != nil && f.date == today {
		return nil
	}

	if f.file != nil {
		f.file.Close()
		f.file, f.logger, f.date = nil, nil, ""
	}

	dir := currentDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建日志文件夹失败: %w", err)
	}

	name := filepath.Join(dir, fmt.Sprintf("%s-%s.log", f.prefix, today))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}

	f.file = file
	f.date = today
	f.logger = log.New(file, "", 0)
	return nil
}

func (f *dailyFile) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file != nil {
		f.file.Close()
	}
	f.file, f.logger, f.date = nil, nil, ""
}

// write 写入一行（带时间戳），文件未打开时丢弃
func (f *dailyFile) write(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logger == nil {
		return
	}
	if err := f.rotateLocked(); err != nil {
		return
	}
	f.logger.Printf("%s %s", time.Now().In(location()).Format("2006/01/02 15:04:05"), message)
}

// path 当前日志文件路径，未打开时为空
func (f *dailyFile) path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return ""
	}
	return f.file.Name()
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func emit(level LogLevel, message string) {
	line := fmt.Sprintf("[%s] %s", level.String(), message)
	log.Print(line)

	if GetLevel() == DEBUG {
		appFile.write(line)
	}

	hookMu.RLock()
	fn := hook
	hookMu.RUnlock()
	if fn != nil {
		// 订阅方出错不能影响主流程
		go func() {
			defer func() { recover() }()
			fn(level.String(), message)
		}()
	}
}

func logf(level LogLevel, format string, args ...interface{}) {
	if !shouldLog(level) {
		return
	}
	emit(level, fmt.Sprintf(format, args...))
}

func logln(level LogLevel, args ...interface{}) {
	if !shouldLog(level) {
		return
	}
	emit(level, strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

// Debug 输出调试日志
func Debug(format string, args ...interface{}) {
	logf(DEBUG, format, args...)
}

// Debugln 输出调试日志（无格式）
func Debugln(args ...interface{}) {
	logln(DEBUG, args...)
}

// Info 输出一般信息日志
func Info(format string, args ...interface{}) {
	logf(INFO, format, args...)
}

// Infoln 输出一般信息日志（无格式）
func Infoln(args ...interface{}) {
	logln(INFO, args...)
}

// Warn 输出警告日志
func Warn(format string, args ...interface{}) {
	logf(WARN, format, args...)
}

// Warnln 输出警告日志（无格式）
func Warnln(args ...interface{}) {
	logln(WARN, args...)
}

// Error 输出错误日志
func Error(format string, args ...interface{}) {
	logf(ERROR, format, args...)
}

// Errorln 输出错误日志（无格式）
func Errorln(args ...interface{}) {
	logln(ERROR, args...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(format string, args ...interface{}) {
	logf(FATAL, format, args...)
	Close()
	os.Exit(1)
}

// Fatalf 兼容标准库命名
func Fatalf(format string, args ...interface{}) {
	Fatal(format, args...)
}
