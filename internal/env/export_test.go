package env

var LoadConfigWith = loadConfig
