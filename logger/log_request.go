package logger

// LogStreamRequest 记录一次流请求及返回的状态码
func LogStreamRequest(remoteAddr, method, path, proto string, status int) {
	if remoteAddr == "" {
		remoteAddr = "-"
	}
	LogPrintf("[%s] %s %s %s %d", remoteAddr, method, path, proto, status)
}
