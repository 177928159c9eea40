package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/fivetwenty-io/masto/pkg/masto"
)

// appendQuery serializes params into query. Slices use the repeated
// "key[]=v" form.
func appendQuery(query url.Values, params masto.Params) {
	for _, key := range sortedKeys(params) {
		value := params[key]

		if values, ok := scalarSlice(value); ok {
			for _, v := range values {
				query.Add(key+"[]", v)
			}

			continue
		}

		switch value.(type) {
		case masto.File, *masto.File:
			continue
		}

		query.Set(key, masto.FormatScalar(value))
	}
}

func encodeJSON(v interface{}) ([]byte, string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	return data, "application/json", nil
}

// encodeMultipart writes params as multipart/form-data. Files become file
// parts, slices repeat "key[]" fields.
func encodeMultipart(params masto.Params) ([]byte, string, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	for _, key := range sortedKeys(params) {
		var err error

		switch value := params[key].(type) {
		case masto.File:
			err = writeFilePart(writer, key, &value)
		case *masto.File:
			err = writeFilePart(writer, key, value)
		default:
			if values, ok := scalarSlice(value); ok {
				for _, v := range values {
					err = writer.WriteField(key+"[]", v)
					if err != nil {
						break
					}
				}
			} else {
				err = writer.WriteField(key, masto.FormatScalar(value))
			}
		}

		if err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}

	err := writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(writer *multipart.Writer, field string, file *masto.File) error {
	if file.Reader == nil {
		return masto.ErrInvalidParams
	}

	name := file.Name
	if name == "" {
		name = field
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(name)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(part, file.Reader)

	return err
}

// scalarSlice renders slices and arrays (other than []byte) element-wise.
func scalarSlice(value any) ([]string, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	out := make([]string, 0, rv.Len())
	for i := range rv.Len() {
		out = append(out, masto.FormatScalar(rv.Index(i).Interface()))
	}

	return out, true
}

func sortedKeys(params masto.Params) []string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
