// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/iancoleman/strcase"
)

type logger struct{ log.Logger }

func (l logger) Packet(ctx context.Context, name string, packet any) {
	// This is expensive; bail out if we don't need it.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := realValue(reflect.ValueOf(packet))
	if missingValue(val) {
		return
	}
	l.Log(ctx, slog.LevelDebug, name, reflectAttrs(val)...)
}

func (l logger) Transition(ctx context.Context, from, to State) {
	l.Debug(ctx, "connection state",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

func reflectAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		attrs = append(attrs, reflectAttr(
			strcase.ToSnake(f.Name),
			realValue(val.Field(i)),
		)...)
	}
	return attrs
}

func reflectAttr(name string, val reflect.Value) []slog.Attr {
	if missingValue(val) {
		return nil
	}

	switch name {
	case "properties":
		return reflectAttrs(val)

	// Credentials never reach the log.
	case "password":
		return []slog.Attr{slog.String(name, "[redacted]")}

	// Telemetry payloads are logged by size only.
	case "payload":
		return []slog.Attr{slog.Int("payload_size", val.Len())}

	case "qo_s":
		return []slog.Attr{slog.Any("qos", val.Interface())}
	}

	switch v := val.Interface().(type) {
	case []byte:
		return []slog.Attr{slog.String(name, string(v))}

	case paho.UserProperties:
		attrs := make([]any, len(v))
		for i, p := range v {
			attrs[i] = slog.String(p.Key, p.Value)
		}
		return []slog.Attr{slog.Group(name, attrs...)}
	}

	if val.Kind() == reflect.Struct {
		as := reflectAttrs(val)
		if len(as) == 0 {
			return nil
		}
		grp := make([]any, len(as))
		for i, a := range as {
			grp[i] = a
		}
		return []slog.Attr{slog.Group(name, grp...)}
	}

	return []slog.Attr{slog.Any(name, val.Interface())}
}

func realValue(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	return val
}

func missingValue(val reflect.Value) bool {
	return val.Kind() == reflect.Invalid || val.IsZero()
}
