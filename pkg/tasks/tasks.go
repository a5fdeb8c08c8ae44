// Package tasks 定义了通过 Kafka 传递的任务结构。
package tasks

// IngestTask 表示一次文档导入任务，Process 根据 DocumentID 加载文档记录。
type IngestTask struct {
	DocumentID string `json:"document_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
}
