package mqtt

import (
	"strings"
	"testing"
)

func TestNewAssignsClientID(t *testing.T) {
	c := New(Options{Broker: "tcp://broker.example:1883", Topic: "msh/#"}, nil)
	if !strings.HasPrefix(c.opts.ClientID, "meshmap-") {
		t.Errorf("client id = %q", c.opts.ClientID)
	}

	c2 := New(Options{Broker: "tcp://broker.example:1883", Topic: "msh/#"}, nil)
	if c.opts.ClientID == c2.opts.ClientID {
		t.Error("client ids should be unique per client")
	}
}

func TestNewKeepsExplicitClientID(t *testing.T) {
	c := New(Options{Broker: "tcp://broker.example:1883", ClientID: "fixed-id"}, nil)
	if c.opts.ClientID != "fixed-id" {
		t.Errorf("client id = %q", c.opts.ClientID)
	}
}
