// Package topics 从最近的问答记录里提取高频关键词，供管理面展示"用户在问什么"。
package topics

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"parley/internal/store"
)

const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"

	maxRows          = 50
	maxSampleCandid  = 5
	minKeywordLength = 3
)

type Entry struct {
	Speaker string
	Text    string
}

type Document struct {
	ID        string
	Timestamp time.Time
	Entries   []Entry
}

type Row struct {
	Keyword        string    `json:"keyword"`
	Count          int       `json:"count"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	SampleQuestion string    `json:"sample_question"`
	SampleChatID   string    `json:"sample_chat_id"`
}

// stopwords 是固定的英文虚词表；命中即丢弃。
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "him": true, "his": true, "how": true, "its": true,
	"may": true, "who": true, "did": true, "get": true, "use": true,
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"what": true, "when": true, "your": true, "does": true, "will": true,
	"would": true, "could": true, "should": true, "there": true,
	"where": true, "which": true, "about": true, "into": true,
	"please": true, "help": true, "need": true, "want": true,
}

type candidate struct {
	docID     string
	question  string
	timestamp time.Time
}

type keywordState struct {
	count      int
	lastSeenAt time.Time
	candidates []candidate
}

// Extract 对一批文档计算关键词行：count 按包含该词的文档数计，同一文档内
// 重复出现只算一次。返回按 count 降序的前 50 行。
func Extract(docs []Document) []Row {
	states := map[string]*keywordState{}

	for _, doc := range docs {
		question := firstUserText(doc)
		if question == "" {
			continue
		}
		for _, kw := range tokenizeQuestion(question) {
			st, ok := states[kw]
			if !ok {
				st = &keywordState{}
				states[kw] = st
			}
			st.count++
			if doc.Timestamp.After(st.lastSeenAt) {
				st.lastSeenAt = doc.Timestamp
			}
			st.candidates = append(st.candidates, candidate{
				docID:     doc.ID,
				question:  question,
				timestamp: doc.Timestamp,
			})
		}
	}

	keywords := make([]string, 0, len(states))
	for kw := range states {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool {
		a, b := states[keywords[i]], states[keywords[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > maxRows {
		keywords = keywords[:maxRows]
	}

	now := time.Now()
	usedDocs := map[string]bool{}
	rows := make([]Row, 0, len(keywords))
	for _, kw := range keywords {
		st := states[kw]

		// 采样候选只保留最近的 5 条。
		sort.SliceStable(st.candidates, func(i, j int) bool {
			return st.candidates[i].timestamp.After(st.candidates[j].timestamp)
		})
		if len(st.candidates) > maxSampleCandid {
			st.candidates = st.candidates[:maxSampleCandid]
		}

		// 优先挑还没被更高排名关键词用过的文档，避免多行展示同一条对话。
		picked := st.candidates[0]
		for _, c := range st.candidates {
			if !usedDocs[c.docID] {
				picked = c
				break
			}
		}
		usedDocs[picked.docID] = true

		lastSeen := st.lastSeenAt
		if lastSeen.IsZero() {
			// 无时间戳时回退到当前时间；行为刻意保留，调用方应知晓。
			lastSeen = now
		}

		rows = append(rows, Row{
			Keyword:        kw,
			Count:          st.count,
			LastSeenAt:     lastSeen,
			SampleQuestion: picked.question,
			SampleChatID:   picked.docID,
		})
	}
	return rows
}

// FromChatLogs 把存储层的问答记录转成提取器的文档形态。
func FromChatLogs(logs []store.ChatLog) []Document {
	docs := make([]Document, 0, len(logs))
	for _, l := range logs {
		docs = append(docs, Document{
			ID:        "chat:" + strings.TrimSpace(l.ConversationID),
			Timestamp: l.CreatedAt,
			Entries: []Entry{
				{Speaker: SpeakerUser, Text: l.Question},
				{Speaker: SpeakerAssistant, Text: l.Answer},
			},
		})
	}
	return docs
}

func firstUserText(doc Document) string {
	for _, e := range doc.Entries {
		if e.Speaker == SpeakerUser {
			return strings.TrimSpace(e.Text)
		}
	}
	return ""
}

// tokenizeQuestion 小写化后按非字母数字切分，丢掉短词、纯数字与虚词，
// 并在单个文档内去重。
func tokenizeQuestion(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if len(f) < minKeywordLength {
			continue
		}
		if isAllDigits(f) {
			continue
		}
		if stopwords[f] {
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
