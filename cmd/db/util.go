package db

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/arangovst/cmd/util"
	"github.com/ValentinKolb/arangovst/rpc/common"
)

// decodeJSONArg parses a JSON object given on the command line
func decodeJSONArg(arg string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(arg), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON document: %w", err)
	}
	return doc, nil
}

// encodeJSONArg converts a JSON argument to a body in the wire format of the client
func encodeJSONArg(arg string) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return vstClient.Serializer().Marshal(v)
}

// printBody prints the status and the decoded body of a response
func printBody(resp common.Response) error {
	fmt.Printf("status=%d\n", resp.StatusCode)
	if len(resp.Body) == 0 {
		return nil
	}
	var body interface{}
	if err := vstClient.Serializer().Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}
	return util.PrintJSON(body)
}
