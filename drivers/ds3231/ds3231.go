// Package ds3231 is a minimal driver for the Maxim DS3231 real-time clock,
// covering what a deep-sleep wake source needs: timekeeping, alarm 1
// programming, and the INT#/SQW interrupt output.
//
// Design notes (datasheet references):
// • I2C, 7-bit address 0x68; byte registers, BCD-coded time fields.
// • Alarm 1 occupies 0x07..0x0A; bit 7 of each byte is an A1Mx mask bit.
// • Control (0x0E): EOSC#, BBSQW, CONV, RS2, RS1, INTCN, A2IE, A1IE.
// • Status (0x0F): OSF, EN32kHz, BSY, A2F, A1F. Alarm flags are cleared by
//   writing 0; the INT# line stays asserted while A1F&A1IE are both set.
package ds3231

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

const AddressDefault = 0x68

// Register sub-addresses.
const (
	regSeconds = 0x00
	regAlarm1  = 0x07 // seconds, minutes, hours, day/date
	regControl = 0x0E
	regStatus  = 0x0F
)

// Control bits (0x0E).
const (
	ctlA1IE  = 1 << 0 // alarm 1 interrupt enable
	ctlA2IE  = 1 << 1
	ctlINTCN = 1 << 2 // 1: INT#/SQW is an interrupt output
)

// Status bits (0x0F).
const (
	stA1F = 1 << 0 // alarm 1 flag
	stA2F = 1 << 1
	stOSF = 1 << 7 // oscillator stop flag
)

// ErrOscillatorStopped means the RTC lost power and its time is not valid.
var ErrOscillatorStopped = errors.New("ds3231: oscillator stopped, time invalid")

type Device struct {
	i2c  drivers.I2C
	addr uint16

	// Fixed buffers to avoid per-call heap allocations.
	w [8]byte
	r [7]byte
}

func New(i2c drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{i2c: i2c, addr: addr}
}

// Configure checks that the oscillator is running and routes INT#/SQW to
// interrupt mode with both alarms disabled. Call once at boot.
func (d *Device) Configure() error {
	st, err := d.readReg(regStatus)
	if err != nil {
		return err
	}
	if st&stOSF != 0 {
		return ErrOscillatorStopped
	}
	ctl, err := d.readReg(regControl)
	if err != nil {
		return err
	}
	ctl |= ctlINTCN
	ctl &^= ctlA1IE | ctlA2IE
	return d.writeReg(regControl, ctl)
}

// ReadTime returns the RTC time (UTC, seconds resolution).
func (d *Device) ReadTime() (time.Time, error) {
	d.w[0] = regSeconds
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:7]); err != nil {
		return time.Time{}, err
	}
	sec := bcdToDec(d.r[0] & 0x7F)
	min := bcdToDec(d.r[1] & 0x7F)
	hour := bcdToDec(d.r[2] & 0x3F) // 24h mode
	date := bcdToDec(d.r[4] & 0x3F)
	month := bcdToDec(d.r[5] & 0x1F)
	year := 2000 + bcdToDec(d.r[6])
	return time.Date(year, time.Month(month), date, hour, min, sec, 0, time.UTC), nil
}

// SetTime writes the RTC time (UTC) and clears the oscillator stop flag.
func (d *Device) SetTime(t time.Time) error {
	t = t.UTC()
	d.w[0] = regSeconds
	d.w[1] = decToBcd(t.Second())
	d.w[2] = decToBcd(t.Minute())
	d.w[3] = decToBcd(t.Hour()) // 24h mode, bit6 clear
	d.w[4] = decToBcd(int(t.Weekday()) + 1)
	d.w[5] = decToBcd(t.Day())
	d.w[6] = decToBcd(int(t.Month()))
	d.w[7] = decToBcd(t.Year() % 100)
	if err := d.i2c.Tx(d.addr, d.w[:8], nil); err != nil {
		return err
	}
	st, err := d.readReg(regStatus)
	if err != nil {
		return err
	}
	return d.writeReg(regStatus, st&^stOSF)
}

// SetAlarm1 programs alarm 1 to fire when date, hours, minutes and seconds
// all match t. Good for wake intervals up to one month out.
func (d *Device) SetAlarm1(t time.Time) error {
	t = t.UTC()
	d.w[0] = regAlarm1
	d.w[1] = decToBcd(t.Second()) // A1M1=0
	d.w[2] = decToBcd(t.Minute()) // A1M2=0
	d.w[3] = decToBcd(t.Hour())   // A1M3=0
	d.w[4] = decToBcd(t.Day())    // A1M4=0, DY/DT=0: date match
	return d.i2c.Tx(d.addr, d.w[:5], nil)
}

// EnableAlarm1Interrupt asserts INT# when alarm 1 fires.
func (d *Device) EnableAlarm1Interrupt() error {
	ctl, err := d.readReg(regControl)
	if err != nil {
		return err
	}
	return d.writeReg(regControl, ctl|ctlINTCN|ctlA1IE)
}

// DisableAlarms masks both alarm interrupts.
func (d *Device) DisableAlarms() error {
	ctl, err := d.readReg(regControl)
	if err != nil {
		return err
	}
	return d.writeReg(regControl, ctl&^(ctlA1IE|ctlA2IE))
}

// Alarm1Fired reports whether the alarm 1 flag is latched.
func (d *Device) Alarm1Fired() (bool, error) {
	st, err := d.readReg(regStatus)
	return st&stA1F != 0, err
}

// ClearAlarm1 releases the alarm 1 flag (and INT#, if enabled).
func (d *Device) ClearAlarm1() error {
	st, err := d.readReg(regStatus)
	if err != nil {
		return err
	}
	return d.writeReg(regStatus, st&^stA1F)
}

// ---------------- Bus helpers ----------------

func (d *Device) readReg(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

func (d *Device) writeReg(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	return d.i2c.Tx(d.addr, d.w[:2], nil)
}

func decToBcd(v int) byte { return byte(v/10<<4 | v%10) }
func bcdToDec(v byte) int { return int(v>>4)*10 + int(v&0x0F) }
