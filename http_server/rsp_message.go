package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// 返回错误信息
func RspError(w http.ResponseWriter, status int, err error) {
	var rspdata = make(map[string]interface{})
	rspdata["code"] = status
	rspdata["message"] = err.Error()
	writeJSON(w, status, rspdata)
}

// 返回成功信息
func RspSuccess(w http.ResponseWriter, d interface{}) {
	var rspdata = make(map[string]interface{})
	rspdata["code"] = 200
	rspdata["message"] = "success"
	rspdata["data"] = d
	writeJSON(w, http.StatusOK, rspdata)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logrus.Error(err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
