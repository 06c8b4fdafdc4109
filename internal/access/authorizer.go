package access

import (
	"go.uber.org/zap"
)

// CardSet 启动时加载的授权卡号集合，构造后只读
type CardSet struct {
	ids map[string]struct{}
}

// NewCardSet 构造授权集合；卡号按原样保存，不做大小写或空白规范化
func NewCardSet(ids []string) *CardSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return &CardSet{ids: m}
}

// Contains 精确匹配
func (s *CardSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Len 授权卡数量
func (s *CardSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Authorize 判断卡号是否在授权集合中
func Authorize(id string, set *CardSet) bool {
	return set.Contains(id)
}

// Authorizer 对提取结果做授权决策并记录日志
type Authorizer struct {
	cards  *CardSet
	logger *zap.Logger
}

// NewAuthorizer 创建授权器，logger 为 nil 时不输出日志
func NewAuthorizer(cards *CardSet, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{cards: cards, logger: logger}
}

// Decide 将一次提取（卡号或错误）转换为 Result。拒绝不缓存、不限流，同一张卡再次刷卡会重新判定。
// fields 附加到决策日志上（如 frame_id）。
func (a *Authorizer) Decide(cardID string, extractErr error, fields ...zap.Field) Result {
	if extractErr != nil {
		a.logger.Warn("malformed card frame", append(fields, zap.Error(extractErr))...)
		return Result{Decision: Error, Reason: extractErr}
	}
	fields = append(fields, zap.String("card", cardID))
	if Authorize(cardID, a.cards) {
		a.logger.Info("card allowed", fields...)
		return Result{Decision: Allowed, CardID: cardID}
	}
	a.logger.Info("card denied", fields...)
	return Result{Decision: Denied, CardID: cardID}
}

// Cards 授权集合
func (a *Authorizer) Cards() *CardSet { return a.cards }
