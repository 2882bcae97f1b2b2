package report

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"stocksync/pkg/json"
	"stocksync/pkg/syncer"
)

// ErrInvalidChecksum 消息校验和不匹配
var ErrInvalidChecksum = errors.New("消息校验和不匹配")

// Header 消息头部信息
type Header struct {
	MessageID   string `json:"messageId"`
	Timestamp   int64  `json:"timestamp"`
	Version     string `json:"version"`
	Producer    string `json:"producer"`
	ContentType string `json:"contentType"`
}

// Metadata 运行维度
type Metadata struct {
	Mode    string `json:"mode"`
	Profile string `json:"profile"`
	Outcome string `json:"outcome"` // completed 或 aborted
}

// Envelope 写入 Redis Stream 的运行统计消息
type Envelope struct {
	Header   Header        `json:"header"`
	Metadata Metadata      `json:"metadata"`
	Payload  *syncer.Stats `json:"payload"`
	Checksum string        `json:"checksum"`
}

// NewEnvelope 包装一次运行的统计
func NewEnvelope(producer string, stats *syncer.Stats) *Envelope {
	env := &Envelope{
		Header: Header{
			MessageID:   uuid.New().String(),
			Timestamp:   time.Now().Unix(),
			Version:     "1.0",
			Producer:    producer,
			ContentType: "application/json",
		},
		Metadata: Metadata{
			Mode:    string(stats.Mode),
			Profile: stats.Profile,
			Outcome: outcome(stats),
		},
		Payload: stats,
	}
	env.Checksum = env.checksum()
	return env
}

func outcome(stats *syncer.Stats) string {
	if stats.Aborted {
		return "aborted"
	}
	return "completed"
}

func (e *Envelope) checksum() string {
	temp := Envelope{Header: e.Header, Metadata: e.Metadata, Payload: e.Payload}
	data, err := json.Marshal(temp)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Validate 验证消息完整性
func (e *Envelope) Validate() error {
	if e.Checksum != e.checksum() {
		return ErrInvalidChecksum
	}
	return nil
}

// ToJSON 序列化
func (e *Envelope) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON 反序列化
func FromJSON(s string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, err
	}
	return &env, nil
}
