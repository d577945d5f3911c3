package gen

import (
	"engagement-ledger/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewSnowflakeNode, AsIDGenerator),
)

// IDGenerator hands out unique, roughly time ordered identifiers.
type IDGenerator interface {
	NextID() string
}

type SnowflakeNode struct {
	node *snowflake.Node
}

func NewSnowflakeNode(cfg *config.Config) (*SnowflakeNode, error) {
	nodeID := int64(1)
	if cfg != nil && cfg.Snowflake.NodeID > 0 {
		nodeID = cfg.Snowflake.NodeID
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		zap.L().Error("failed to init snowflake node", zap.Int64("node_id", nodeID), zap.Error(err))
		return nil, err
	}
	return &SnowflakeNode{node: node}, nil
}

func (s *SnowflakeNode) NextID() string {
	return s.node.Generate().String()
}

// AsIDGenerator exposes the node through the IDGenerator seam the stores
// depend on.
func AsIDGenerator(n *SnowflakeNode) IDGenerator {
	return n
}
