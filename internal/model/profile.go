package model

import (
	"bytes"
	"encoding/json"
)

// StudentProfile 是构建检索查询所需的学生画像，所有字段可选。
type StudentProfile struct {
	Exceptionalities []string     `json:"exceptionalities"`
	Weaknesses       []string     `json:"weaknesses"`
	Accommodations   []string     `json:"accommodations"`
	CustomGoals      []CustomGoal `json:"customGoals"`
}

// CustomGoal 兼容两种输入：纯字符串，或带 title 字段的对象。
type CustomGoal struct {
	Title string
	Raw   string
}

// UnmarshalJSON 接受 "goal text" 或 {"title": "..."}。
// 没有 title 的对象保留原始 JSON 文本。
func (g *CustomGoal) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*g = CustomGoal{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*g = CustomGoal{Raw: s}
		return nil
	}

	var obj struct {
		Title *string `json:"title"`
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &obj); err == nil && obj.Title != nil && *obj.Title != "" {
			*g = CustomGoal{Title: *obj.Title, Raw: string(trimmed)}
			return nil
		}
	}
	*g = CustomGoal{Raw: string(trimmed)}
	return nil
}

// MarshalJSON 以对象形式输出带标题的目标，否则输出原始字符串。
func (g CustomGoal) MarshalJSON() ([]byte, error) {
	if g.Title != "" {
		return json.Marshal(struct {
			Title string `json:"title"`
		}{g.Title})
	}
	return json.Marshal(g.Raw)
}

// Text 返回用于拼接查询的文本：优先 title，否则原始条目。
func (g CustomGoal) Text() string {
	if g.Title != "" {
		return g.Title
	}
	return g.Raw
}
