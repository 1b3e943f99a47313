// Package quality applies the optional post-merge scene quality screen.
package quality

import (
	"github.com/robert-malhotra/planet-overlap/internal/config"
	"github.com/robert-malhotra/planet-overlap/internal/scene"
)

// StandardCategory is the quality category accepted by the screen.
const StandardCategory = "standard"

// Screen drops scenes unfit for overlap analysis.
type Screen struct {
	RequireGroundControl bool
	// Category, when set, must equal the scene's quality category.
	Category string
	// MaxViewAngle is an exclusive upper bound; zero disables the check.
	MaxViewAngle float64
	// MinVertices is the minimum number of exterior ring positions,
	// closing position included.
	MinVertices int
}

// DefaultScreen requires ground control, standard quality, a view angle
// under 3 degrees and at least 5 footprint positions.
func DefaultScreen() Screen {
	return Screen{
		RequireGroundControl: true,
		Category:             StandardCategory,
		MaxViewAngle:         3,
		MinVertices:          5,
	}
}

// FromConfig returns the configured screen and whether it is enabled.
func FromConfig(cfg config.SearchConfig) (Screen, bool) {
	s := DefaultScreen()
	s.MaxViewAngle = cfg.MaxViewAngle
	return s, cfg.QualityScreen
}

// Accept reports whether s passes the screen.
func (q Screen) Accept(s scene.Scene) bool {
	if q.RequireGroundControl && !s.GroundControl {
		return false
	}
	if q.Category != "" && s.QualityCategory != q.Category {
		return false
	}
	if q.MaxViewAngle > 0 && !(s.ViewAngle < q.MaxViewAngle) {
		return false
	}
	if q.MinVertices > 0 && (len(s.Footprint) == 0 || len(s.Footprint[0]) < q.MinVertices) {
		return false
	}
	return true
}

// Apply returns the accepted scenes in order and the number rejected.
func (q Screen) Apply(scenes []scene.Scene) ([]scene.Scene, int) {
	kept := make([]scene.Scene, 0, len(scenes))
	for _, s := range scenes {
		if q.Accept(s) {
			kept = append(kept, s)
		}
	}
	return kept, len(scenes) - len(kept)
}
