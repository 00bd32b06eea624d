package common

type RuleType string

const (
	RuleTypeTileSpoof     RuleType = "TILE-SPOOF"
	RuleTypePaintOverride RuleType = "PAINT-OVERRIDE"
)

type Rule interface {
	Type() RuleType
	Match(metadata *Metadata) bool
	Action() Action
}
