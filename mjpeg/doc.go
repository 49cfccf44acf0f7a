// Package mjpeg 实现单客户端的 MJPEG (multipart/x-mixed-replace) 推流服务。
//
// Server 在一个循环里完成全部工作：没有连接时尝试 accept 一次，
// 有连接时以很短的超时轮询请求行，解析到合法的 GET 后开始推帧，
// 任何 I/O 错误都会关闭连接并回到等待状态，错误不会向调用方传播。
//
// 同一时刻只服务一个客户端，不支持 keep-alive、路由和认证。
// 请求行必须在一次读取中完整到达，跨多次读取的请求行不做缓存。
package mjpeg
