package sysfs

// deviceNames maps a handful of well-known Intel PCI device IDs to a
// friendly product name. Not exhaustive; unknown IDs simply have no name.
var deviceNames = map[uint16]string{
	0x3e90: "Intel UHD Graphics 630",
	0x3e91: "Intel UHD Graphics 630",
	0x3e92: "Intel UHD Graphics 630",
	0x3e98: "Intel UHD Graphics 630",
	0x5917: "Intel UHD Graphics 620",
	0x9a49: "Intel UHD Graphics (11th Gen)",
	0x9a40: "Intel UHD Graphics (11th Gen)",
	0x4680: "Intel UHD Graphics 770",
	0x4692: "Intel UHD Graphics 730",
	0x8a52: "Intel Iris Plus Graphics G7",
	0x8a56: "Intel Iris Plus Graphics G1",
	0x9a78: "Intel Iris Xe Graphics",
	0x46a6: "Intel Iris Xe Graphics",
	0x5690: "Intel Arc A770M",
	0x5691: "Intel Arc A730M",
	0x5692: "Intel Arc A550M",
	0x56a0: "Intel Arc A770",
	0x56a1: "Intel Arc A750",
	0x56a5: "Intel Arc A380",
}

// DeviceName returns a friendly product name for a PCI device ID, or the
// empty string if the ID is not in the table.
func DeviceName(deviceID uint16) string {
	return deviceNames[deviceID]
}
