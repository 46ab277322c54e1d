package docstore

import (
	"fmt"

	"github.com/bytedance/sonic"
)

func encodeBody(document Document) (string, error) {
	body, err := sonic.ConfigStd.MarshalToString(document)
	if err != nil {
		return "", fmt.Errorf("docstore: encode body: %w", err)
	}
	return body, nil
}

func decodeBody(body string) (Document, error) {
	var document Document
	if err := sonic.ConfigStd.UnmarshalFromString(body, &document); err != nil {
		return nil, fmt.Errorf("docstore: decode body: %w", err)
	}
	if document == nil {
		document = Document{}
	}
	return document, nil
}
