// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"myreprise-chatbot-go/internal/service"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/tasks"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求：索引维护与快照。
type AdminHandler struct {
	indexService service.IndexService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(indexService service.IndexService) *AdminHandler {
	return &AdminHandler{indexService: indexService}
}

// Reindex 从商品目录全量重建向量索引。
func (h *AdminHandler) Reindex(c *gin.Context) {
	start := time.Now()
	indexed, failed, err := h.indexService.Reindex(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrCatalogUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "商品目录不可用", "data": nil})
			return
		}
		log.Error("[AdminHandler] 全量索引失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "全量索引失败", "data": gin.H{"indexed": indexed, "failed": failed}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"indexed":  indexed,
		"failed":   failed,
		"duration": time.Since(start).String(),
	}})
}

// EnqueueItem 为单个商品投递索引任务，action 取 upsert 或 delete。
func (h *AdminHandler) EnqueueItem(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的商品 ID", "data": nil})
		return
	}
	action := c.DefaultQuery("action", tasks.ActionUpsert)
	if action != tasks.ActionUpsert && action != tasks.ActionDelete {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 action", "data": nil})
		return
	}

	task := tasks.ItemIndexTask{ItemID: uint(id), Action: action}
	if err := h.indexService.Enqueue(c.Request.Context(), task); err != nil {
		log.Errorf("[AdminHandler] 索引任务失败, ItemID: %d, error: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "索引任务失败", "data": nil})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "索引任务已接受", "data": task})
}

// Compact 清理索引中的过期向量。
func (h *AdminHandler) Compact(c *gin.Context) {
	removed, err := h.indexService.Compact()
	if err != nil {
		respondSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"removed": removed}})
}

// SaveSnapshot 把内存索引写入对象存储。
func (h *AdminHandler) SaveSnapshot(c *gin.Context) {
	n, err := h.indexService.SaveSnapshot(c.Request.Context())
	if err != nil {
		respondSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "快照已保存", "data": gin.H{"items": n}})
}

// LoadSnapshot 从对象存储恢复内存索引。
func (h *AdminHandler) LoadSnapshot(c *gin.Context) {
	n, err := h.indexService.LoadSnapshot(c.Request.Context())
	if err != nil {
		respondSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "快照已加载", "data": gin.H{"items": n}})
}

// IndexStats 返回索引统计。
func (h *AdminHandler) IndexStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.indexService.Stats()})
}

func respondSnapshotError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrSnapshotUnsupported) {
		c.JSON(http.StatusNotImplemented, gin.H{"code": http.StatusNotImplemented, "message": "当前索引后端不支持该操作", "data": nil})
		return
	}
	log.Error("[AdminHandler] 索引维护失败", err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "索引维护失败", "data": nil})
}
