package logger

import (
	"log"
	"os"

	EWFLogger "github.com/aarsakian/EWF_Reader/logger"
	VMDKLogger "github.com/aarsakian/VMDK_Reader/logger"
)

type Logger struct {
	info        *log.Logger
	warning     *log.Logger
	errorLogger *log.Logger
	active      bool
}

var RecoveryLogger Logger

func InitializeLogger(active bool, logfilename string) error {
	if !active {
		RecoveryLogger = Logger{active: active}
		return nil
	}

	file, err := os.OpenFile(logfilename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		RecoveryLogger = Logger{active: false}
		return err
	}

	info := log.New(file, "DataRecover|INFO: ", log.Ldate|log.Ltime)
	warning := log.New(file, "DataRecover|WARNING: ", log.Ldate|log.Ltime)
	errorLogger := log.New(file, "DataRecover|ERROR: ", log.Ldate|log.Ltime)
	RecoveryLogger = Logger{info: info, warning: warning, errorLogger: errorLogger, active: active}
	return nil
}

// InitializeAll also points the container readers' loggers at the same file.
func InitializeAll(active bool, logfilename string) error {
	if err := InitializeLogger(active, logfilename); err != nil {
		return err
	}
	EWFLogger.InitializeLogger(active, logfilename)
	VMDKLogger.InitializeLogger(active, logfilename)
	return nil
}

func (logger Logger) Info(msg string) {
	if logger.active {
		logger.info.Println(msg)
	}
}

func (logger Logger) Error(msg any) {
	if logger.active {
		logger.errorLogger.Println(msg)
	}
}

func (logger Logger) Warning(msg string) {
	if logger.active {
		logger.warning.Println(msg)
	}
}

func (logger Logger) IsActive() bool {
	return logger.active
}
