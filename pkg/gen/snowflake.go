package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(NewSnowflakeNode))

// NewSnowflakeNode returns the id generator used for every persisted record.
func NewSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
