package match

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dlclark/regexp2"

	"github.com/sunbk201/tilespoof/internal/common"
)

// Paint matches POST requests whose path contains the paint marker.
type Paint struct {
	action common.Action
	marker *regexp2.Regexp
}

func (p *Paint) Type() common.RuleType {
	return common.RuleTypePaintOverride
}

func (p *Paint) Match(metadata *common.Metadata) bool {
	if metadata.Method() != http.MethodPost {
		return false
	}
	match, err := p.marker.MatchString(metadata.Path())
	if err != nil {
		slog.Warn("regexp2.MatchString", slog.String("marker", p.marker.String()), slog.Any("error", err))
		return false
	}
	return match
}

func (p *Paint) Action() common.Action {
	return p.action
}

func (p *Paint) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(p.Type())),
		slog.String("marker", p.marker.String()),
		slog.Any("action", p.action),
	)
}

// NewPaint compiles marker as a regexp2 pattern. A plain path fragment like
// "/pixel/" matches itself.
func NewPaint(marker string, action common.Action) (*Paint, error) {
	if marker == "" {
		return nil, fmt.Errorf("empty paint marker")
	}
	re, err := regexp2.Compile(marker, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("regexp2.Compile %q: %w", marker, err)
	}
	return &Paint{action: action, marker: re}, nil
}
