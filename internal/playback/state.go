package playback

// State is the observable state of a player
type State int

const (
	Stopped State = iota
	Playing
	Paused
	Exhausted
	Errored
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Exhausted:
		return "exhausted"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}
