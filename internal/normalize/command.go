package normalize

import "strings"

// Command is a recognized control word or phrase.
type Command int

const (
	CmdNone Command = iota
	CmdEndWorkout
	CmdDone
	CmdStart
	CmdRepeat
	CmdSkip
	CmdHelp
)

func (c Command) String() string {
	switch c {
	case CmdEndWorkout:
		return "end_workout"
	case CmdDone:
		return "done"
	case CmdStart:
		return "start"
	case CmdRepeat:
		return "repeat"
	case CmdSkip:
		return "skip"
	case CmdHelp:
		return "help"
	default:
		return "none"
	}
}

// vocabulary is checked in order; the first matching group wins.
var vocabulary = []struct {
	cmd     Command
	phrases []string
	prefix  bool // also match when the utterance starts with the word
}{
	{CmdEndWorkout, []string{"end workout", "finish workout", "stop workout"}, false},
	{CmdDone, []string{"done", "end", "finish"}, false},
	{CmdStart, []string{"yes", "ready", "go", "start"}, false},
	{CmdRepeat, []string{"repeat", "what"}, true},
	{CmdSkip, []string{"skip", "next exercise"}, false},
	{CmdHelp, []string{"how", "help", "instructions"}, true},
}

// Command classifies an utterance after applying command mappings.
// Numbers and unknown words yield CmdNone.
func (n *Normalizer) Command(raw string) Command {
	return Match(n.commands.replace(Clean(raw)))
}

// Match classifies an already cleaned utterance against the built-in
// vocabulary.
func Match(cleaned string) Command {
	if cleaned == "" {
		return CmdNone
	}
	first, _, _ := strings.Cut(cleaned, " ")
	for _, v := range vocabulary {
		for _, p := range v.phrases {
			if cleaned == p || (v.prefix && first == p) {
				return v.cmd
			}
		}
	}
	return CmdNone
}
