package homgar

import "encoding/json"

// envelope wraps every vendor answer.
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type loginRequest struct {
	AreaCode     string `json:"areaCode"`
	PhoneOrEmail string `json:"phoneOrEmail"`
	Password     string `json:"password"`
	DeviceID     string `json:"deviceId"`
}

type loginResponse struct {
	Token        string `json:"token"`
	TokenExpired int64  `json:"tokenExpired"` // seconds
}

type homeObject struct {
	HID      int64  `json:"hid"`
	HomeName string `json:"homeName"`
}

type deviceObject struct {
	DID        string         `json:"did"`
	MID        int64          `json:"mid"`
	Addr       int            `json:"addr"`
	Name       string         `json:"name"`
	Model      string         `json:"model"`
	ModelCode  int            `json:"modelCode"`
	PortNumber int            `json:"portNumber"`
	IotID      string         `json:"iotId"`
	ProductKey string         `json:"productKey"`
	DeviceName string         `json:"deviceName"`
	SubDevices []deviceObject `json:"subDevices"`
}

type statusObject struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Time  int64  `json:"time"` // unix millis
}

type deviceStatusResponse struct {
	Status          []statusObject `json:"status"`
	SubDeviceStatus []statusObject `json:"subDeviceStatus"`
}
