package logger

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", DEBUG},
		{" INFO ", INFO},
		{"warning", WARN},
		{"Warn", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"verbose", INFO},
		{"", INFO},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	defer SetLevel(INFO)
	SetLevel(WARN)

	if shouldLog(INFO) {
		t.Error("WARN 级别下不应输出 INFO")
	}
	if !shouldLog(ERROR) {
		t.Error("WARN 级别下应输出 ERROR")
	}
}

func TestHookReceivesMessages(t *testing.T) {
	defer SetHook(nil)
	SetLevel(INFO)

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan struct{}, 4)
	SetHook(func(level, message string) {
		mu.Lock()
		got = append(got, level+":"+message)
		mu.Unlock()
		done <- struct{}{}
	})

	Debug("不应出现 %d", 1)
	Info("回测完成 %d", 2)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("订阅函数未收到日志")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "INFO:回测完成 2" {
		t.Errorf("订阅内容错误: %v", got)
	}
}

func TestDebugWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	SetLogDir(dir)
	defer func() {
		SetLevel(INFO)
		Close()
		SetLogDir("logs")
	}()

	SetLevel(DEBUG)
	Debug("写入文件 %s", "ok")

	path := appFile.path()
	if path == "" || !strings.HasPrefix(path, dir) {
		t.Fatalf("DEBUG 级别应打开日志文件, 得到 %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(data), "[DEBUG] 写入文件 ok") {
		t.Errorf("日志文件内容错误: %s", data)
	}

	SetLevel(INFO)
	if appFile.path() != "" {
		t.Error("非 DEBUG 级别应关闭日志文件")
	}
}
