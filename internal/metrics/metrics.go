package metrics

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is prefixed before every metric. If it is changed, it must be done
// before any metrics collector is registered.
var Namespace = "graphdex"

type Collector interface {
	Metrics() []prometheus.Collector
}

// PrometheusCollectorsFromFields returns every exported field of the struct i
// that is a prometheus.Collector.
func PrometheusCollectorsFromFields(i interface{}) (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(i))
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok {
			cs = append(cs, u)
		}
	}
	return cs
}

// NewRegistry returns a registry with every collector of cs registered.
func NewRegistry(cs ...Collector) (*prometheus.Registry, error) {
	r := prometheus.NewRegistry()
	for _, c := range cs {
		for _, m := range c.Metrics() {
			if err := r.Register(m); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}
