// Package units converts between raw fixed-point sensor values and text.
//
// Format renders a reading for logs and alert commands. Parse turns a
// configured threshold ("85C", "11.5V", "2000") into the raw value it is
// compared against. Raw units per kind:
//
//	temp         micro-kelvin
//	fan          RPM
//	volt/current micro-volt / micro-ampere
//	percent      milli-percent
//	illuminance  micro-lux
//	indicator    0 / non-zero
//	raw, drive   plain integer
package units
