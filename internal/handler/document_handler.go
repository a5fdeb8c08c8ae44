package handler

import (
	"io"
	"net/http"

	"iep-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService    service.DocumentService
	maxUploadSize int64
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。maxUploadSize 为 0 时不限制大小。
func NewDocumentHandler(docService service.DocumentService, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{docService: docService, maxUploadSize: maxUploadSize}
}

// Upload 接收 multipart 表单中的 file 字段，保存原件并投递导入任务。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件 file"})
		return
	}
	if h.maxUploadSize > 0 && fileHeader.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "文件过大"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, "读取上传文件", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, "读取上传文件", err)
		return
	}

	doc, err := h.docService.Upload(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		respondError(c, "上传文档", err)
		return
	}
	respondOK(c, http.StatusAccepted, "文档已接收, 正在处理", doc.ToDTO())
}

// List 返回所有文档及其导入状态。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context())
	if err != nil {
		respondError(c, "获取文档列表", err)
		return
	}
	respondOK(c, http.StatusOK, "获取文档列表成功", docs)
}

// Get 返回单个文档的导入状态。
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.docService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "获取文档", err)
		return
	}
	respondOK(c, http.StatusOK, "success", doc.ToDTO())
}

// Delete 删除文档及其全部分块。
func (h *DocumentHandler) Delete(c *gin.Context) {
	deleted, err := h.docService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "删除文档", err)
		return
	}
	respondOK(c, http.StatusOK, "文档已删除", gin.H{"deletedChunks": deleted})
}

// Reingest 重新导入文档。
func (h *DocumentHandler) Reingest(c *gin.Context) {
	doc, err := h.docService.Reingest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "重新导入文档", err)
		return
	}
	respondOK(c, http.StatusAccepted, "已重新投递导入任务", doc.ToDTO())
}
