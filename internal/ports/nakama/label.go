package nakama

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// matchLabel encodes the searchable match label, e.g.
// {"game":"daifugo","open":3,"phase":"lobby","round":0}.
func matchLabel(open int, phase string, round int) (string, error) {
	label, err := structpb.NewStruct(map[string]interface{}{
		"game":  gameLabel,
		"open":  open,
		"phase": phase,
		"round": round,
	})
	if err != nil {
		return "", err
	}
	data, err := (&protojson.MarshalOptions{EmitUnpopulated: true}).Marshal(label)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
