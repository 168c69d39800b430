package snmp

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// SysUpTime is the sysUpTime.0 instance from SNMPv2-MIB.
const SysUpTime = "1.3.6.1.2.1.1.3.0"

// ErrNoValue is returned when the agent has no instance for a requested oid.
var ErrNoValue = errors.New("no value for oid")

// Uptime returns the time since the agent's network management portion was last re-initialized.
func Uptime(ctx context.Context, s Session) (time.Duration, error) {
	pdu, err := s.Get(ctx, []string{SysUpTime})
	if err != nil {
		return 0, err
	}
	if pdu.Error != 0 {
		return 0, errors.Errorf("agent returned error status %d", pdu.Error)
	}
	if len(pdu.VarbindList) != 1 {
		return 0, errors.Errorf("expected 1 varbind, got %d", len(pdu.VarbindList))
	}
	tv := pdu.VarbindList[0].TypedValue
	switch tv.Type { //nolint: exhaustive
	case NoSuchObject, NoSuchInstance, EndOfMib:
		return 0, errors.Wrap(ErrNoValue, SysUpTime)
	}
	return tv.Duration()
}
