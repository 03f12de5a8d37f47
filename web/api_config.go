package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"quantlab/config"
)

const maskedValue = "******"

// maskedConfig 返回隐藏了密钥和连接串的配置副本
func maskedConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	if masked.Data.Binance.APIKey != "" {
		masked.Data.Binance.APIKey = maskedValue
	}
	if masked.Data.Binance.SecretKey != "" {
		masked.Data.Binance.SecretKey = maskedValue
	}
	if masked.Data.Redis.Password != "" {
		masked.Data.Redis.Password = maskedValue
	}
	if masked.Database.Type != "sqlite" && masked.Database.DSN != "" {
		masked.Database.DSN = maskedValue
	}
	return &masked
}

func isSecretPath(path string) bool {
	for _, suffix := range []string{".api_key", ".secret_key", ".password", ".dsn"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func (ws *WebServer) currentConfig(c *gin.Context) *config.Config {
	if ws.deps.Reloader == nil {
		fail(c, http.StatusServiceUnavailable, "配置管理器未初始化")
		return nil
	}
	return maskedConfig(ws.deps.Reloader.GetCurrentConfig())
}

// getConfigHandler 获取当前生效的配置（YAML格式）
// GET /api/config
func (ws *WebServer) getConfigHandler(c *gin.Context) {
	cfg := ws.currentConfig(c)
	if cfg == nil {
		return
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fail(c, http.StatusInternalServerError, "序列化配置失败: %v", err)
		return
	}

	c.Data(http.StatusOK, "application/x-yaml", data)
}

// getConfigJSONHandler 获取当前生效的配置（JSON格式）
// GET /api/config/json
func (ws *WebServer) getConfigJSONHandler(c *gin.Context) {
	cfg := ws.currentConfig(c)
	if cfg == nil {
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// validateConfigHandler 校验一份 YAML 配置，并给出与当前配置的差异
// POST /api/config/validate
func (ws *WebServer) validateConfigHandler(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, "读取请求体失败: %v", err)
		return
	}

	cfg, err := config.LoadConfigFromBytes(data)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"valid":   false,
			"message": err.Error(),
		})
		return
	}

	response := gin.H{
		"success": true,
		"valid":   true,
	}
	if ws.deps.Reloader != nil {
		diff := config.DiffConfig(ws.deps.Reloader.GetCurrentConfig(), cfg)
		for i := range diff.Changes {
			if isSecretPath(diff.Changes[i].Path) {
				diff.Changes[i].OldValue = maskedValue
				diff.Changes[i].NewValue = maskedValue
			}
		}
		response["changes"] = diff.Changes
		response["requires_restart"] = diff.RequiresRestart
	}
	c.JSON(http.StatusOK, response)
}
